package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/spf13/cobra"
)

// NewSignInCommand creates the signin command.
func NewSignInCommand(rootOpts *RootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and load the cart of the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				res := deps.Session.Identity().SignIn(ctx, email, password)
				if !res.Success {
					return out.Failure(res.Error)
				}
				return printUser(out, deps.Session.Identity().Current())
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// NewSignUpCommand creates the signup command.
func NewSignUpCommand(rootOpts *RootOptions) *cobra.Command {
	var req identity.SignUpRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				res := deps.Session.Identity().SignUp(ctx, req)
				if !res.Success {
					return out.Failure(res.Error)
				}
				return printUser(out, deps.Session.Identity().Current())
			})
		},
	}
	cmd.Flags().StringVar(&req.UserName, "name", "", "display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password, at least 6 characters")
	cmd.Flags().StringVar(&req.ConfirmPassword, "confirm-password", "", "repeat the password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// NewSignOutCommand creates the signout command.
func NewSignOutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				deps.Session.Identity().SignOut(ctx)
				return out.Success(nil, func(w io.Writer) {
					_, _ = fmt.Fprintln(w, "Signed out")
				})
			})
		},
	}
}

// NewWhoAmICommand creates the whoami command.
func NewWhoAmICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				user := deps.Session.Identity().Current()
				if user == nil {
					return out.Failure("Not signed in")
				}
				return printUser(out, user)
			})
		},
	}
}

func printUser(out *OutputFormatter, user *identity.User) error {
	return out.Success(user, func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "Signed in as %s <%s>\n", user.Name, user.Email)
	})
}
