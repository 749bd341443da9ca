package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/pkg/validation"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// NewCartCommand creates the cart command group.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change the cart of the signed-in user",
	}
	cmd.AddCommand(newCartShowCommand(rootOpts))
	cmd.AddCommand(newCartCountCommand(rootOpts))
	cmd.AddCommand(newCartAddCommand(rootOpts))
	cmd.AddCommand(newCartRemoveCommand(rootOpts))
	cmd.AddCommand(newCartUpdateCommand(rootOpts))
	cmd.AddCommand(newCartClearCommand(rootOpts))
	cmd.AddCommand(newCartReloadCommand(rootOpts))
	return cmd
}

// cartView is the printed form of the cart.
type cartView struct {
	Items    cart.Snapshot    `json:"items"`
	Summary  checkout.Summary `json:"summary"`
	Identity string           `json:"identity,omitempty"`
}

func printCart(out *OutputFormatter, c *cart.Engine) error {
	snapshot := c.Snapshot()
	view := cartView{Items: snapshot, Summary: checkout.Totals(snapshot), Identity: c.Identity()}
	return out.Success(view, func(w io.Writer) {
		if len(snapshot) == 0 {
			_, _ = fmt.Fprintln(w, "Cart is empty")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tTOTAL")
		for _, item := range snapshot {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", item.ID, item.Name, item.Qty(), item.Price.StringFixed(2), item.Total().StringFixed(2))
		}
		_ = tw.Flush()
		_, _ = fmt.Fprintf(w, "Items: %d  Total: %s\n", view.Summary.Count, view.Summary.Total.StringFixed(2))
	})
}

// requireSignedIn fails like the web UI does when an anonymous user touches the cart.
func requireSignedIn(out *OutputFormatter, c *cart.Engine) error {
	if c.Identity() == "" {
		return out.Failure("Sign in to use the cart")
	}
	return nil
}

func newCartShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the cart with its totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				return printCart(out, deps.Session.Cart())
			})
		},
	}
}

func newCartCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of units in the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				count := deps.Session.Cart().Count()
				return out.Success(map[string]int{"count": count}, func(w io.Writer) {
					_, _ = fmt.Fprintln(w, count)
				})
			})
		},
	}
}

func newCartAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		item  cart.Item
		price string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one unit of a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			p, err := decimal.NewFromString(price)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --price", err)
			}
			item.Price = p
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				engine := deps.Session.Cart()
				authRequired := false
				err := engine.AddItem(item, func() { authRequired = true })
				if authRequired {
					return out.Failure("Sign in to use the cart")
				}
				if err != nil {
					if fields := validation.FieldErrors(err); fields != nil {
						return out.Failure(fmt.Sprintf("invalid item: %v", fields))
					}
					return WrapExitError(ExitFailure, "failed to add item", err)
				}
				return printCart(out, engine)
			})
		},
	}
	cmd.Flags().StringVar(&item.ID, "id", "", "product id")
	cmd.Flags().StringVar(&item.Name, "name", "", "product name")
	cmd.Flags().StringVar(&price, "price", "", "unit price")
	cmd.Flags().StringVar(&item.ImageURL, "image-url", "", "product image")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newCartRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				engine := deps.Session.Cart()
				if err := requireSignedIn(out, engine); err != nil {
					return err
				}
				engine.RemoveItem(args[0])
				return printCart(out, engine)
			})
		},
	}
}

func newCartUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <product-id> <quantity>",
		Short: "Set the quantity of a line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			quantity, err := strconv.Atoi(args[1])
			if err != nil || quantity < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("quantity must be a positive integer, got %q", args[1]))
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				engine := deps.Session.Cart()
				if err := requireSignedIn(out, engine); err != nil {
					return err
				}
				if engine.Snapshot().Index(args[0]) < 0 {
					return out.Failure(fmt.Sprintf("%s is not in the cart", args[0]))
				}
				engine.UpdateQuantity(args[0], quantity)
				return printCart(out, engine)
			})
		},
	}
}

func newCartClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				engine := deps.Session.Cart()
				if err := requireSignedIn(out, engine); err != nil {
					return err
				}
				engine.Clear()
				return printCart(out, engine)
			})
		},
	}
}

func newCartReloadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Fetch the cart from the storefront API again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				engine := deps.Session.Cart()
				if err := requireSignedIn(out, engine); err != nil {
					return err
				}
				engine.Reload(engine.Identity())
				if err := engine.Wait(ctx); err != nil {
					return WrapExitError(ExitFailure, "cart reload did not finish", err)
				}
				return printCart(out, engine)
			})
		},
	}
}
