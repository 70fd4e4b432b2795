package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mrlokans/opdscatalog/internal/catalog"
	"github.com/mrlokans/opdscatalog/internal/config"
)

// FeedsCommand manages stored feed definitions
type FeedsCommand struct {
	Action       string
	Identifier   string
	Title        string
	URL          string
	DatabasePath string
	JSON         bool

	Out io.Writer
}

func NewFeedsCommand() *FeedsCommand {
	return &FeedsCommand{}
}

func (cmd *FeedsCommand) ParseFlags(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("feeds requires an action: list, get, add, update or delete")
	}
	cmd.Action = args[0]
	args = args[1:]

	// The identifier may come before the flags: feeds update <id> -title ...
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd.Identifier = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("feeds "+cmd.Action, flag.ContinueOnError)

	fs.StringVar(&cmd.Title, "title", "", "Feed title (add, update)")
	fs.StringVar(&cmd.URL, "url", "", "Catalog URL (add, update)")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the catalog database")
	fs.BoolVar(&cmd.JSON, "json", false, "Print JSON instead of a table")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s feeds <action> [id] [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Manage stored OPDS feed definitions.\n\n")
		fmt.Fprintf(os.Stderr, "Actions:\n")
		fmt.Fprintf(os.Stderr, "  list                          List all feeds\n")
		fmt.Fprintf(os.Stderr, "  get <id>                      Show one feed\n")
		fmt.Fprintf(os.Stderr, "  add -title T -url U [<id>]    Add a feed (identifier generated when omitted)\n")
		fmt.Fprintf(os.Stderr, "  update <id> -title T -url U   Replace title and URL\n")
		fmt.Fprintf(os.Stderr, "  delete <id>                   Delete a feed and its stored credential\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.Identifier == "" && fs.NArg() > 0 {
		cmd.Identifier = fs.Arg(0)
	}

	switch cmd.Action {
	case "list":
	case "get", "delete":
		if cmd.Identifier == "" {
			return fmt.Errorf("feeds %s requires a feed identifier", cmd.Action)
		}
	case "add":
		if cmd.Title == "" || cmd.URL == "" {
			return fmt.Errorf("feeds add requires -title and -url")
		}
	case "update":
		if cmd.Identifier == "" || cmd.Title == "" || cmd.URL == "" {
			return fmt.Errorf("feeds update requires an identifier, -title and -url")
		}
	default:
		return fmt.Errorf("unknown feeds action: %s", cmd.Action)
	}

	return nil
}

func (cmd *FeedsCommand) Run() error {
	app, err := openApp(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeApp(app)

	ctx := context.Background()
	out := output(cmd.Out)
	input := catalog.FeedInput{Identifier: cmd.Identifier, Title: cmd.Title, URL: cmd.URL}

	switch cmd.Action {
	case "list":
		list, err := app.Catalog.FindAllFeeds(ctx)
		if err != nil {
			return fmt.Errorf("failed to list feeds: %w", err)
		}
		if cmd.JSON {
			return printJSON(out, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No feeds stored")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tURL")
		for _, feed := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", feed.Identifier, feed.Title, feed.URL)
		}
		return tw.Flush()

	case "get":
		feed, err := app.Catalog.GetFeed(ctx, cmd.Identifier)
		if err != nil {
			return err
		}
		if cmd.JSON {
			return printJSON(out, feed)
		}
		fmt.Fprintf(out, "ID:      %s\nTitle:   %s\nURL:     %s\nAdded:   %s\n",
			feed.Identifier, feed.Title, feed.URL, feed.CreatedAt.Format("2006-01-02 15:04"))
		return nil

	case "add":
		feed, err := app.Catalog.AddFeed(ctx, input)
		if err != nil {
			return err
		}
		if cmd.JSON {
			return printJSON(out, feed)
		}
		fmt.Fprintf(out, "Added feed %s\n", feed.Identifier)
		return nil

	case "update":
		feed, err := app.Catalog.UpdateFeed(ctx, input)
		if err != nil {
			return err
		}
		if cmd.JSON {
			return printJSON(out, feed)
		}
		fmt.Fprintf(out, "Updated feed %s\n", feed.Identifier)
		return nil

	case "delete":
		if err := app.Catalog.DeleteFeed(ctx, cmd.Identifier); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted feed %s\n", cmd.Identifier)
		return nil
	}

	return fmt.Errorf("unknown feeds action: %s", cmd.Action)
}
