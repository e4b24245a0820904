package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"golang.org/x/term"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/pkg/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable
	nowFunc          = time.Now          // mockable

	errHelp = errors.New("help provided")
)

type userCreator interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateUserRequest) (*models.User, error)
}

type taskRunner interface {
	Run(ctx context.Context, task string) (*dto.ReconcileReport, error)
}

type yearRecomputer interface {
	Recompute(ctx context.Context, now time.Time) (*dto.RecomputeResult, error)
}

type commandLine struct {
	db    *sql.DB
	users userCreator
	tasks taskRunner
	years yearRecomputer
	out   io.Writer
	stdin int
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                       - run goose migrations (up, down, status, redo, version...)")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -first NAME -last NAME  - create a user, the password is prompted next")
	fmt.Fprintln(cli.out, "  backfill                                     - enroll active users lacking an enrollment in the current year")
	fmt.Fprintln(cli.out, "  dedupe                                       - soft delete duplicated enrollments")
	fmt.Fprintln(cli.out, "  orphans                                      - enroll users without any enrollment in the latest archived year")
	fmt.Fprintln(cli.out, "  populate                                     - enroll staff in every year and professors where they teach")
	fmt.Fprintln(cli.out, "  check                                        - print every enrollment")
	fmt.Fprintln(cli.out, "  recompute                                    - demote ended current years and list finished ones")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return migrateFunc(ctx, cli.db, args[2], args[3:]...)
	case "adduser":
		return cli.runAddUser(ctx, args[2:])
	case dto.TaskBackfill, dto.TaskDedupe, dto.TaskOrphans, dto.TaskPopulate, dto.TaskCheck:
		return cli.runTask(ctx, args[1])
	case "recompute":
		return cli.recompute(ctx)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) runAddUser(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	email := cmd.String("email", "", "The user's email. The password will be prompted next.")
	first := cmd.String("first", "", "First name.")
	last := cmd.String("last", "", "Last name.")
	role := cmd.String("role", string(models.RoleAdmin), "One of admin, administratif, prof, eleve.")
	year := cmd.String("year", "", "Academic year ID; defaults to the current year.")
	if err := cmd.Parse(args); err != nil {
		return errHelp
	}
	if *email == "" || *first == "" || *last == "" {
		cmd.Usage()
		return errHelp
	}

	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(cli.stdin)
	fmt.Fprintln(cli.out)
	if err != nil {
		return err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return errHelp
	}

	return cli.addUser(ctx, dto.CreateUserRequest{
		Email:          *email,
		Password:       string(pwd),
		FirstName:      *first,
		LastName:       *last,
		Role:           *role,
		AcademicYearID: *year,
	})
}
