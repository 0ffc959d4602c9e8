package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"linkkeeper/internal/view"
)

var linksFlags struct {
	filter string
	sort   string
	order  string
	domain string
	tag    string
}

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "List saved links",
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter, err := view.ParseFilter(linksFlags.filter)
		if err != nil {
			return err
		}
		sort, err := view.ParseSort(linksFlags.sort)
		if err != nil {
			return err
		}
		order, err := view.ParseOrder(linksFlags.order)
		if err != nil {
			return err
		}

		a, _, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		links, err := a.View.List(cmd.Context(), view.Query{
			Filter: filter,
			Sort:   sort,
			Order:  order,
			Domain: linksFlags.domain,
			Tag:    linksFlags.tag,
		})
		if err != nil {
			return err
		}

		now := time.Now()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "READ\tAGE\tTITLE\tURL")
		for _, l := range links {
			read := " "
			if l.IsRead {
				read = "x"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", read, view.RelativeTime(l.CreatedAt, now), l.Title, l.URL)
		}
		return tw.Flush()
	},
}

func init() {
	f := linksCmd.Flags()
	f.StringVar(&linksFlags.filter, "filter", "all", "all, unread or read")
	f.StringVar(&linksFlags.sort, "sort", "createdAt", "createdAt, updatedAt, readAt, title or domain")
	f.StringVar(&linksFlags.order, "order", "desc", "asc or desc")
	f.StringVar(&linksFlags.domain, "domain", "", "only links from this domain")
	f.StringVar(&linksFlags.tag, "tag", "", "only links with this tag")
}
