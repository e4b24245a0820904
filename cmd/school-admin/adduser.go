package main

import (
	"context"
	"fmt"

	"github.com/noah-isme/ecole-api/internal/dto"
)

// addUser creates a user enrolled in the requested (or current) academic year.
func (cli *commandLine) addUser(ctx context.Context, req dto.CreateUserRequest) error {
	user, err := cli.users.Create(ctx, nil, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}
