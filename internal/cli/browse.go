package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mrlokans/opdscatalog/internal/config"
	"github.com/mrlokans/opdscatalog/internal/opds"
)

// BrowseCommand fetches and prints a catalog page
type BrowseCommand struct {
	URL          string
	FeedID       string
	DatabasePath string
	JSON         bool

	Out io.Writer
}

func NewBrowseCommand() *BrowseCommand {
	return &BrowseCommand{}
}

func (cmd *BrowseCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)

	fs.StringVar(&cmd.FeedID, "id", "", "Browse the stored feed with this identifier")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the catalog database")
	fs.BoolVar(&cmd.JSON, "json", false, "Print the parsed feed as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s browse [options] <url>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s browse -id <feed id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Fetch an OPDS 1 or OPDS 2 catalog page and print its contents.\n")
		fmt.Fprintf(os.Stderr, "Protected catalogs use credentials stored by the login command.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	cmd.URL = fs.Arg(0)

	if (cmd.URL == "") == (cmd.FeedID == "") {
		return fmt.Errorf("provide either a catalog URL or -id")
	}
	return nil
}

func (cmd *BrowseCommand) Run() error {
	app, err := openApp(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeApp(app)

	ctx := context.Background()

	var feed *opds.Feed
	if cmd.FeedID != "" {
		feed, err = app.Catalog.BrowseFeed(ctx, cmd.FeedID)
	} else {
		feed, err = app.Catalog.Browse(ctx, cmd.URL)
	}
	if err != nil {
		return describeCatalogError(err)
	}

	out := output(cmd.Out)
	if cmd.JSON {
		return printJSON(out, feed)
	}
	printFeed(out, feed)
	return nil
}

func printFeed(out io.Writer, feed *opds.Feed) {
	fmt.Fprintln(out, feed.Title)
	fmt.Fprintln(out, strings.Repeat("=", len(feed.Title)))
	fmt.Fprintf(out, "URL:    %s\nFormat: %s\n", feed.URL, feed.Format)
	if feed.TotalResults > 0 {
		fmt.Fprintf(out, "Total:  %d results\n", feed.TotalResults)
	}

	if len(feed.Navigation) > 0 {
		fmt.Fprintln(out, "\nNavigation:")
		for _, link := range feed.Navigation {
			fmt.Fprintf(out, "  - %s\n    %s\n", link.Title, link.Href)
		}
	}

	if len(feed.Entries) > 0 {
		fmt.Fprintf(out, "\nEntries (%d):\n", len(feed.Entries))
		for i, entry := range feed.Entries {
			if len(entry.Authors) > 0 {
				fmt.Fprintf(out, "  %d. %s by %s\n", i+1, entry.Title, strings.Join(entry.Authors, ", "))
			} else {
				fmt.Fprintf(out, "  %d. %s\n", i+1, entry.Title)
			}
		}
	}

	for _, group := range feed.Groups {
		fmt.Fprintf(out, "\n%s (%d entries, %d links)\n", group.Title, len(group.Entries), len(group.Navigation))
	}

	for _, group := range feed.Facets {
		fmt.Fprintf(out, "\nFacet %s:\n", group.Title)
		for _, facet := range group.Facets {
			marker := " "
			if facet.ActiveFacet {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %s\n", marker, facet.Title)
		}
	}

	if feed.Next != nil {
		fmt.Fprintf(out, "\nNext page: %s\n", feed.Next.Href)
	}
	if len(feed.SearchLinks) > 0 {
		fmt.Fprintf(out, "Search:    %s\n", feed.SearchLinks[0].Href)
	}
}

// describeCatalogError adds a hint for failures a user can act on.
func describeCatalogError(err error) error {
	var authErr *opds.AuthRequiredError
	if errors.As(err, &authErr) {
		hint := "run the login command for this catalog"
		if authErr.Document != nil && authErr.Document.Title != "" {
			hint = fmt.Sprintf("%s (%s)", hint, authErr.Document.Title)
		}
		return fmt.Errorf("%w: %s", err, hint)
	}
	return err
}
