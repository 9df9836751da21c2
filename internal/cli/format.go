package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/misiones-arrienda/arrienda/internal/chat"
	"github.com/misiones-arrienda/arrienda/internal/email"
	"github.com/misiones-arrienda/arrienda/internal/inquiry"
	"github.com/misiones-arrienda/arrienda/internal/notification"
	"github.com/misiones-arrienda/arrienda/internal/property"
)

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatPrice formats a listing price, "Consultar" when unpublished.
func formatPrice(amount int64, currency string) string {
	if amount == 0 {
		return "Consultar"
	}
	if currency == "" {
		currency = "ARS"
	}
	return email.FormatPrice(amount, currency)
}

// printPropertySummary prints a single listing in text format.
func printPropertySummary(w io.Writer, p *property.Property) {
	fmt.Fprintf(w, "Listing #%d: %s\n", p.ID, p.Title)
	fmt.Fprintf(w, "  Operation: %s %s\n", p.Operation, p.PropertyType)
	fmt.Fprintf(w, "  Price:     %s\n", formatPrice(p.Price, p.Currency))
	fmt.Fprintf(w, "  Location:  %s, %s\n", p.City, p.Province)
	if p.Address != "" {
		fmt.Fprintf(w, "  Address:   %s\n", p.Address)
	}
	if p.Bedrooms != nil {
		fmt.Fprintf(w, "  Bedrooms:  %d\n", *p.Bedrooms)
	}
	if p.Bathrooms != nil {
		fmt.Fprintf(w, "  Bathrooms: %d\n", *p.Bathrooms)
	}
	if p.AreaM2 != nil {
		fmt.Fprintf(w, "  Area:      %g m²\n", *p.AreaM2)
	}
	if p.ContactPhone != "" {
		fmt.Fprintf(w, "  Contact:   %s\n", p.ContactPhone)
	}
	fmt.Fprintf(w, "  Status:    %s\n", p.Status)
	if p.Featured && p.FeaturedUntil != nil {
		fmt.Fprintf(w, "  Featured:  until %s\n", p.FeaturedUntil.Format("2006-01-02"))
	}
	if p.ExpiresAt != nil {
		fmt.Fprintf(w, "  Expires:   %s\n", p.ExpiresAt.Format("2006-01-02"))
	}
	if len(p.Images) > 0 {
		fmt.Fprintf(w, "  Images:    %d\n", len(p.Images))
	}
	if p.Description != "" {
		fmt.Fprintf(w, "\n%s\n", p.Description)
	}
}

// printPropertyTable prints a list of listings as a formatted table.
func printPropertyTable(out io.Writer, props []*property.Property, total int) error {
	if len(props) == 0 {
		fmt.Fprintln(out, "No listings found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ID\tTITLE\tCITY\tOPERATION\tPRICE\tBEDS\tSTATUS"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "--\t-----\t----\t---------\t-----\t----\t------"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}

	for _, p := range props {
		beds := "-"
		if p.Bedrooms != nil {
			beds = fmt.Sprintf("%d", *p.Bedrooms)
		}
		title := truncate(p.Title, 40)
		if p.Featured {
			title = "★ " + title
		}

		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, title, p.City, p.Operation, formatPrice(p.Price, p.Currency), beds, p.Status); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	fmt.Fprintf(out, "\nShowing %d of %d listings\n", len(props), total)
	return nil
}

// printInquiries prints inquiries in text format.
func printInquiries(w io.Writer, list []*inquiry.Inquiry) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No inquiries.")
		return
	}

	for _, q := range list {
		fmt.Fprintf(w, "[%s] #%d %s <%s>\n  %s\n\n",
			q.CreatedAt.Format("2006-01-02 15:04"), q.ID, q.SenderName, q.SenderEmail, q.Text)
	}
}

// printNotifications prints notifications, unread ones marked with "*".
func printNotifications(w io.Writer, list []notification.Notification) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No notifications.")
		return
	}

	for _, n := range list {
		mark := " "
		if n.ReadAt == nil {
			mark = "*"
		}
		fmt.Fprintf(w, "%s [%s] %s\n", mark, n.CreatedAt.Format("2006-01-02 15:04"), n.Title)
		if n.Body != "" {
			fmt.Fprintf(w, "    %s\n", n.Body)
		}
	}
}

// printConversations prints the conversation list as a table.
func printConversations(out io.Writer, list []chat.Conversation) error {
	if len(list) == 0 {
		fmt.Fprintln(out, "No conversations.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ID\tWITH\tUNREAD\tLAST MESSAGE"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, c := range list {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.OtherName, c.Unread, truncate(c.LastMessage, 50)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return w.Flush()
}

// printMessage prints one chat message on a line.
func printMessage(w io.Writer, m chat.Message, self int64) {
	who := fmt.Sprintf("user %d", m.SenderID)
	if m.SenderID == self {
		who = "you"
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Body)
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen-3]) + "..."
}
