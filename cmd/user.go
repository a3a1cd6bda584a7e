/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/db"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/internal/store"
	"golang.org/x/term"
)

// userCmd groups account provisioning. There is no self-service signup.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var newUser services.NewUser

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an active user; the password is read from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		in := newUser
		in.Password = password

		return withUsers(cmd.Context(), func(users *services.UserService) error {
			user, err := users.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
			return nil
		})
	},
}

var deactivateUsername string

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate a user; existing tokens keep working until they expire",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(cmd.Context(), func(users *services.UserService) error {
			if err := users.Deactivate(cmd.Context(), deactivateUsername); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", deactivateUsername)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userDeactivateCmd)

	userCreateCmd.Flags().StringVar(&newUser.Username, "username", "", "login name")
	userCreateCmd.Flags().StringVar(&newUser.Email, "email", "", "email address")
	userCreateCmd.Flags().StringVar(&newUser.FirstName, "first-name", "", "first name")
	userCreateCmd.Flags().StringVar(&newUser.LastName, "last-name", "", "last name")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")

	userDeactivateCmd.Flags().StringVar(&deactivateUsername, "username", "", "login name")
	_ = userDeactivateCmd.MarkFlagRequired("username")
}

func withUsers(ctx context.Context, fn func(*services.UserService) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(services.NewUserService(store.NewUserRepository(conn)))
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password must be entered on a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
