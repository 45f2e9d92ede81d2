package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gofalre.io/storefront/controller"
	"gofalre.io/storefront/handler"
)

var sessionID string

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Drive the cart page of a running storefront",
	Long: `The cart commands load the cart page of a running server for the given
session, apply one intent through the page controller and print the page
summary afterwards.`,
}

// cartSession is a loaded cart page bound to a controller.
type cartSession struct {
	http *http.Client
	base *url.URL
	doc  *controller.Document
	ctl  *controller.Controller
}

func openCartSession(cmd *cobra.Command) (*cartSession, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("invalid --session %q: %w", sessionID, err)
	}

	base, err := url.Parse(cfg.Client.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	jar.SetCookies(base, []*http.Cookie{{Name: handler.SessionCookie, Value: sessionID, Path: "/"}})
	hc := &http.Client{Jar: jar, Timeout: cfg.Client.GetTimeout()}

	s := &cartSession{http: hc, base: base}
	if err = s.load(cmd); err != nil {
		return nil, err
	}

	client, err := controller.NewClient(cfg.Client.BaseURL,
		controller.WithHTTPClient(hc),
		controller.WithClientLogger(logger))
	if err != nil {
		return nil, err
	}
	s.ctl = controller.New(s.doc, client,
		controller.WithLogger(logger),
		controller.WithWorkers(1))

	return s, nil
}

func (s *cartSession) load(cmd *cobra.Command) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, s.base.JoinPath("/cart").String(), nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to load cart page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to load cart page: %s", resp.Status)
	}

	s.doc, err = controller.ParseDocument(resp.Body)
	return err
}

func (s *cartSession) close() {
	s.ctl.Close()
	s.doc.Close()
}

func (s *cartSession) print(w io.Writer) {
	fmt.Fprintf(w, "items:    %s\n", s.doc.Badge())
	fmt.Fprintf(w, "subtotal: %s\n", s.doc.Text("cart-subtotal"))
	fmt.Fprintf(w, "shipping: %s\n", s.doc.Text("cart-shipping"))
	fmt.Fprintf(w, "total:    %s\n", s.doc.Text("cart-total"))
	for _, msg := range s.doc.Toasts() {
		fmt.Fprintf(w, "notice:   %s\n", msg)
	}
}

// intentCmd builds a cart sub-command that applies one controller intent.
func intentCmd(use, short string, args cobra.PositionalArgs, run func(ctx context.Context, s *cartSession, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openCartSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if err = run(cmd.Context(), s, args); err != nil {
				return err
			}
			s.ctl.Wait()
			s.print(cmd.OutOrStdout())
			return nil
		},
	}
}

var cartShowCmd = intentCmd("show", "Print the cart summary", cobra.NoArgs,
	func(context.Context, *cartSession, []string) error { return nil })

var cartIncreaseCmd = intentCmd("increase <product-id>", "Add one to a line", cobra.ExactArgs(1),
	func(ctx context.Context, s *cartSession, args []string) error {
		s.ctl.Increase(ctx, args[0])
		return nil
	})

var cartDecreaseCmd = intentCmd("decrease <product-id>", "Take one from a line, never below one", cobra.ExactArgs(1),
	func(ctx context.Context, s *cartSession, args []string) error {
		s.ctl.Decrease(ctx, args[0])
		return nil
	})

var cartSetCmd = intentCmd("set <product-id> <quantity>", "Type a quantity into a line", cobra.ExactArgs(2),
	func(ctx context.Context, s *cartSession, args []string) error {
		if !s.doc.TypeQuantity(args[0], args[1]) {
			return fmt.Errorf("product %s is not in the cart", args[0])
		}
		s.ctl.ChangeQuantity(ctx, args[0])
		return nil
	})

var cartRemoveCmd = intentCmd("remove <product-id>", "Remove a line", cobra.ExactArgs(1),
	func(ctx context.Context, s *cartSession, args []string) error {
		s.ctl.Remove(ctx, args[0])
		return nil
	})

var cartAddCmd = &cobra.Command{
	Use:   "add <product-id>",
	Short: "Add a product to the cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quantity, _ := cmd.Flags().GetString("quantity")
		size, _ := cmd.Flags().GetString("size")

		s, err := openCartSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()

		form := url.Values{"quantity": {quantity}, "size": {size}}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
			s.base.JoinPath("/add-to-cart", args[0]).String(), strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := s.http.Do(req)
		if err != nil {
			return err
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("add to cart failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}

		if err = s.load(cmd); err != nil {
			return err
		}
		s.print(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	cartCmd.PersistentFlags().StringVar(&sessionID, "session", uuid.NewString(), "cart session id")
	cartAddCmd.Flags().String("quantity", "1", "number of items")
	cartAddCmd.Flags().String("size", "", "size, for sized categories")

	cartCmd.AddCommand(cartShowCmd, cartIncreaseCmd, cartDecreaseCmd, cartSetCmd, cartRemoveCmd, cartAddCmd)
}
