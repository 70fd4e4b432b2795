package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/opdscatalog/internal/config"
)

// SearchCommand runs a query against a catalog's search template
type SearchCommand struct {
	URL          string
	Query        string
	DatabasePath string
	JSON         bool
	ResolveOnly  bool

	Out io.Writer
}

func NewSearchCommand() *SearchCommand {
	return &SearchCommand{}
}

func (cmd *SearchCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)

	fs.StringVar(&cmd.URL, "url", "", "Catalog URL whose search links are used (required)")
	fs.StringVar(&cmd.Query, "q", "", "Search terms (required)")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the catalog database")
	fs.BoolVar(&cmd.JSON, "json", false, "Print the result feed as JSON")
	fs.BoolVar(&cmd.ResolveOnly, "resolve", false, "Print the search URL without fetching results")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s search -url <catalog> -q <terms> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Search a catalog through its OpenSearch or templated search link.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s search -url https://m.gutenberg.org/ebooks.opds/ -q \"moby dick\"\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.URL == "" || cmd.Query == "" {
		return fmt.Errorf("required flags -url and -q not provided")
	}
	return nil
}

func (cmd *SearchCommand) Run() error {
	app, err := openApp(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeApp(app)

	ctx := context.Background()
	out := output(cmd.Out)

	if cmd.ResolveOnly {
		root, err := app.Catalog.Browse(ctx, cmd.URL)
		if err != nil {
			return describeCatalogError(err)
		}
		target, ok := app.Catalog.ResolveSearch(ctx, root.SearchLinks, cmd.Query, root.PrimaryType())
		if !ok {
			return fmt.Errorf("catalog %s does not support search", cmd.URL)
		}
		fmt.Fprintln(out, target)
		return nil
	}

	result, err := app.Catalog.Search(ctx, cmd.URL, cmd.Query)
	if err != nil {
		return describeCatalogError(err)
	}

	if cmd.JSON {
		return printJSON(out, result)
	}
	fmt.Fprintf(out, "Search URL: %s\n\n", result.URL)
	printFeed(out, result.Feed)
	return nil
}
