package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/api"
)

var (
	supportReq    api.SupportRequest
	reviewLabel   string
	reviewRating  int
	reviewComment string
	reviewName    string
	reviewEmail   string
)

var supportCmd = &cobra.Command{
	Use:   "support",
	Short: "Send a message to the support team",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if cur := a.session.Current(); cur != nil {
			if supportReq.Email == "" {
				supportReq.Email = cur.Email
			}
			if supportReq.Name == "" {
				supportReq.Name = cur.Name
			}
		}
		id, err := a.client.SubmitSupport(ctx(cmd), supportReq)
		if err != nil {
			return err
		}
		cmd.Printf("Message sent (reference %s)\n", id)
		return nil
	}),
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Issue and redeem verified review links",
}

var reviewLinkCmd = &cobra.Command{
	Use:   "link [vehicle-id]",
	Short: "Create a single-use review link for a customer",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !a.session.RequireHost() {
			return fmt.Errorf("only hosts can issue review links")
		}
		var vehicleID string
		if len(args) == 1 {
			vehicleID = args[0]
		}
		t, err := a.client.CreateReviewToken(ctx(cmd), vehicleID, reviewLabel)
		if err != nil {
			return err
		}
		cmd.Printf("%s\n", t.Token)
		cmd.Printf("Expires %s\n", t.ExpiresAt.Local().Format("2006-01-02 15:04"))
		return nil
	}),
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <token>",
	Short: "Check a review link before writing the review",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		info, err := a.client.LookupReviewToken(ctx(cmd), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("Review for %s", info.HostName)
		if info.CustomerLabel != "" {
			cmd.Printf(" (%s)", info.CustomerLabel)
		}
		cmd.Printf(", link valid until %s\n", info.ExpiresAt.Local().Format("2006-01-02 15:04"))
		return nil
	}),
}

var reviewSubmitCmd = &cobra.Command{
	Use:   "submit <token>",
	Short: "Submit a review with a review link",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		first, last, _ := strings.Cut(strings.TrimSpace(reviewName), " ")
		id, err := a.client.SubmitReview(ctx(cmd), api.ReviewRequest{
			Token:       args[0],
			Rating:      reviewRating,
			Comment:     reviewComment,
			DisplayName: reviewName,
			FirstName:   first,
			LastName:    strings.TrimSpace(last),
			Email:       reviewEmail,
		})
		if err != nil {
			return err
		}
		cmd.Printf("Thanks! Review %s recorded\n", id)
		return nil
	}),
}

func init() {
	f := supportCmd.Flags()
	f.StringVar(&supportReq.Name, "name", "", "Your name")
	f.StringVar(&supportReq.Email, "email", "", "Where we can reach you")
	f.StringVar(&supportReq.Phone, "phone", "", "Phone number")
	f.StringVar(&supportReq.Subject, "subject", "", "Subject")
	f.StringVar(&supportReq.IssueType, "issue", "", "Issue type")
	f.StringVarP(&supportReq.Message, "message", "m", "", "Message text")
	_ = supportCmd.MarkFlagRequired("message")

	reviewLinkCmd.Flags().StringVar(&reviewLabel, "label", "", "Who the link is for, shown only to you")
	reviewSubmitCmd.Flags().IntVar(&reviewRating, "rating", 0, "Rating from 1 to 5")
	reviewSubmitCmd.Flags().StringVar(&reviewComment, "comment", "", "Comment")
	reviewSubmitCmd.Flags().StringVar(&reviewName, "name", "", "Name shown with the review")
	reviewSubmitCmd.Flags().StringVar(&reviewEmail, "email", "", "Your email, not shown publicly")
	_ = reviewSubmitCmd.MarkFlagRequired("rating")

	reviewCmd.AddCommand(reviewLinkCmd, reviewShowCmd, reviewSubmitCmd)
	rootCmd.AddCommand(supportCmd, reviewCmd)
}
