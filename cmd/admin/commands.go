package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"tagbox/internal/app"
	"tagbox/internal/backfill"
	"tagbox/internal/models"
)

var resetPasswordCommand = command{
	summary: "set a user's password, prompting twice",
	flags: func(fs *pflag.FlagSet) func(context.Context, *app.App) error {
		username := fs.StringP("username", "u", "", "user whose password to reset (required)")
		return func(ctx context.Context, a *app.App) error {
			if *username == "" {
				return errors.New("--username is required")
			}
			user, err := a.DB.GetUser(ctx, *username)
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("unknown user %q", *username)
			}

			first, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			second, err := promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if first != second {
				return errors.New("passwords do not match")
			}

			if err := a.Auth.SetPassword(ctx, user, first); err != nil {
				return err
			}
			fmt.Println("Password changed successfully.")
			return nil
		}
	},
}

var createUserCommand = command{
	summary: "create a user who must change password on first login",
	flags: func(fs *pflag.FlagSet) func(context.Context, *app.App) error {
		username := fs.StringP("username", "u", "", "name of the new user (required)")
		password := fs.StringP("password", "p", "", "initial password (random when omitted)")
		rightNames := fs.StringSliceP("rights", "r", []string{string(models.RightUser)}, "comma-separated rights")
		return func(ctx context.Context, a *app.App) error {
			if *username == "" {
				return errors.New("--username is required")
			}
			rights := make([]models.Right, 0, len(*rightNames))
			for _, name := range *rightNames {
				right, err := models.ParseRight(name)
				if err != nil {
					return err
				}
				rights = append(rights, right)
			}

			initial, err := a.Auth.CreateUser(ctx, *username, *password, rights...)
			if err != nil {
				return err
			}
			if *password == "" {
				fmt.Printf("User %q created with initial password %s\n", *username, initial)
			} else {
				fmt.Printf("User %q created.\n", *username)
			}
			return nil
		}
	},
}

var deleteImageCommand = command{
	summary: "delete an image and its files",
	flags: func(fs *pflag.FlagSet) func(context.Context, *app.App) error {
		id := fs.StringP("image", "i", "", "image id (required)")
		return func(ctx context.Context, a *app.App) error {
			if *id == "" {
				return errors.New("--image is required")
			}
			existed, err := a.Gallery.Delete(ctx, *id)
			if err != nil {
				return err
			}
			if !existed {
				return fmt.Errorf("no image with id %q exists", *id)
			}
			fmt.Printf("Image %s deleted.\n", *id)
			return nil
		}
	},
}

var dumpMetadataCommand = command{
	summary: "print an image's EXIF metadata as JSON",
	flags: func(fs *pflag.FlagSet) func(context.Context, *app.App) error {
		id := fs.StringP("image", "i", "", "image id (required)")
		return func(ctx context.Context, a *app.App) error {
			if *id == "" {
				return errors.New("--image is required")
			}
			img, err := a.Gallery.Get(ctx, *id)
			if err != nil {
				return err
			}
			if img == nil {
				return fmt.Errorf("no image with id %q exists", *id)
			}
			data, err := a.Gallery.Open(ctx, img, false)
			if err != nil {
				return err
			}
			fields, err := backfill.DumpMetadata(data)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(fields, "", "    ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
	},
}

var backfillCommand = command{
	summary: "recompute metadata tags for all images",
	flags: func(fs *pflag.FlagSet) func(context.Context, *app.App) error {
		offset := fs.Int("offset", 0, "image offset to resume from")
		pageSize := fs.Int("page-size", backfill.DefaultPageSize, "images per page")
		return func(ctx context.Context, a *app.App) error {
			job := backfill.New(a.Gallery, a.Logger)
			job.PageSize = *pageSize
			stats, err := job.Run(ctx, *offset)
			fmt.Printf("Scanned %d, updated %d, failed %d.\n", stats.Scanned, stats.Updated, stats.Failed)
			return err
		}
	},
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
