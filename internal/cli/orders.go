package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/pkg/validation"
	"github.com/spf13/cobra"
)

// NewCheckoutCommand creates the checkout command.
func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	var shipping checkout.Shipping
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the cart",
		Long: `Place an order for every item in the cart, shipped to the given address.
Shipping is free. The cart is emptied once the order has been accepted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				order, err := deps.Checkout.PlaceOrder(ctx, shipping)
				switch {
				case err == nil:
				case errors.Is(err, checkout.ErrInvalidShipping):
					return out.Failure(fmt.Sprintf("invalid shipping address: %v", validation.FieldErrors(err)))
				case errors.Is(err, checkout.ErrNotSignedIn), errors.Is(err, checkout.ErrEmptyCart):
					return out.Failure(err.Error())
				default:
					return WrapExitError(ExitFailure, "checkout failed", err)
				}
				return out.Success(order, func(w io.Writer) {
					_, _ = fmt.Fprintf(w, "Order placed: %d item(s), total %s, shipping to %s, %s\n",
						len(order.Items), order.Total.StringFixed(2), order.Shipping.Address, order.Shipping.City)
				})
			})
		},
	}
	cmd.Flags().StringVar(&shipping.Address, "address", "", "street address")
	cmd.Flags().StringVar(&shipping.City, "city", "", "city")
	cmd.Flags().StringVar(&shipping.PostalCode, "postal-code", "", "postal code")
	cmd.Flags().StringVar(&shipping.Country, "country", "", "country")
	return cmd
}

// NewOrdersCommand creates the orders command.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List the orders of the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, deps *app.Dependencies) error {
				orders, err := deps.Checkout.History(ctx)
				if errors.Is(err, checkout.ErrNotSignedIn) {
					return out.Failure("Sign in to see your orders")
				} else if err != nil {
					return WrapExitError(ExitFailure, "failed to fetch orders", err)
				}
				return out.Success(orders, func(w io.Writer) {
					if len(orders) == 0 {
						_, _ = fmt.Fprintln(w, "No orders yet")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					_, _ = fmt.Fprintln(tw, "ID\tDATE\tITEMS\tTOTAL\tSTATUS")
					for _, o := range orders {
						_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", o.ID, o.CreatedAt.Format(time.DateOnly), len(o.Items), o.Total.StringFixed(2), o.Status)
					}
					_ = tw.Flush()
				})
			})
		},
	}
}
