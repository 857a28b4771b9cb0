// cmd/tools/kb-indexer/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"helpdesk-workers/internal/common/config"
	"helpdesk-workers/internal/common/database"
	"helpdesk-workers/internal/common/knowledge"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/models"
	"helpdesk-workers/pkg/registry"
)

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	indexCmd := flag.NewFlagSet("index", flag.ExitOnError)

	// Add command flags
	addManifest := addCmd.String("manifest", "configs/knowledge-base.json", "Path to the knowledge manifest")
	id := addCmd.String("id", "", "Policy ID (e.g., vpn_policy)")
	category := addCmd.String("category", "", "Ticket category (IT, HR, Finance, Admin)")
	title := addCmd.String("title", "", "Display title")
	description := addCmd.String("description", "", "Description")
	file := addCmd.String("file", "", "Policy file, relative to the knowledge directory")
	priority := addCmd.Int("priority", 1, "Lookup priority, lower wins")

	// Validate command flags
	validateManifest := validateCmd.String("manifest", "configs/knowledge-base.json", "Path to the knowledge manifest")
	validateDir := validateCmd.String("dir", "knowledge_base", "Knowledge directory")

	// List command flags
	listManifest := listCmd.String("manifest", "configs/knowledge-base.json", "Path to the knowledge manifest")

	// Index command flags
	indexManifest := indexCmd.String("manifest", "configs/knowledge-base.json", "Path to the knowledge manifest")
	indexDir := indexCmd.String("dir", "knowledge_base", "Knowledge directory")
	esURL := indexCmd.String("es", "http://localhost:9200", "Comma-separated Elasticsearch addresses")
	esUser := indexCmd.String("es-user", "", "Elasticsearch username")
	esPass := indexCmd.String("es-pass", "", "Elasticsearch password")
	index := indexCmd.String("index", "helpdesk-policies", "Target index")
	redisAddr := indexCmd.String("redis", "", "Redis address whose knowledge cache is invalidated after indexing")

	if len(os.Args) < 2 {
		help(os.Stdout)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *id == "" || *category == "" || *file == "" {
			fmt.Println("Error: id, category, and file are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		err = addPolicy(*addManifest, registry.Policy{
			ID:          *id,
			Category:    *category,
			Title:       *title,
			Description: *description,
			File:        *file,
			Priority:    *priority,
		})
		if err == nil {
			fmt.Printf("Registered policy: %s\n", *id)
		}

	case "validate":
		validateCmd.Parse(os.Args[2:])
		var reg *registry.PolicyRegistry
		reg, err = validateManifestFiles(*validateManifest, *validateDir)
		if err == nil {
			fmt.Printf("Manifest validation passed. Found %d policies.\n", len(reg.Policies))
		}

	case "list":
		listCmd.Parse(os.Args[2:])
		err = listPolicies(os.Stdout, *listManifest)

	case "index":
		indexCmd.Parse(os.Args[2:])
		err = indexPolicies(context.Background(), indexOptions{
			manifest: *indexManifest,
			dir:      *indexDir,
			es: config.ElasticsearchConfig{
				Addresses: strings.Split(*esURL, ","),
				Username:  *esUser,
				Password:  *esPass,
			},
			index:     *index,
			redisAddr: *redisAddr,
		})

	case "help":
		help(os.Stdout)
		return

	default:
		help(os.Stdout)
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func addPolicy(manifestPath string, p registry.Policy) error {
	reg, err := registry.LoadRegistry(manifestPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load manifest: %w", err)
		}
		reg = &registry.PolicyRegistry{Version: "1.0.0"}
	}

	c, ok := models.ParseCategory(p.Category)
	if !ok || c == models.CategoryOther {
		return fmt.Errorf("category %q cannot hold policies", p.Category)
	}
	p.Category = string(c)
	if p.Title == "" {
		p.Title = p.ID
	}

	reg.Upsert(p)
	if err := reg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return reg.Save(manifestPath)
}

// validateManifestFiles checks the manifest itself and that every policy file
// exists with non-blank text.
func validateManifestFiles(manifestPath, dir string) (*registry.PolicyRegistry, error) {
	reg, err := registry.LoadRegistry(manifestPath)
	if err != nil {
		return nil, err
	}
	if len(reg.Policies) == 0 {
		return nil, fmt.Errorf("manifest contains no policies")
	}

	var problems []string
	for _, p := range reg.Policies {
		path := p.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		text, err := os.ReadFile(path)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", p.ID, err))
			continue
		}
		if strings.TrimSpace(string(text)) == "" {
			problems = append(problems, fmt.Sprintf("%s: %s is empty", p.ID, p.File))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return reg, nil
}

// listPolicies prints policies grouped by category in lookup order.
func listPolicies(w io.Writer, manifestPath string) error {
	reg, err := registry.LoadRegistry(manifestPath)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tPRIORITY\tID\tFILE\tTITLE")
	for _, c := range models.Categories {
		for _, p := range reg.ForCategory(c) {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", c, p.Priority, p.ID, p.File, p.Title)
		}
	}
	return tw.Flush()
}

type indexOptions struct {
	manifest  string
	dir       string
	es        config.ElasticsearchConfig
	index     string
	redisAddr string
}

func indexPolicies(ctx context.Context, opts indexOptions) error {
	reg, err := validateManifestFiles(opts.manifest, opts.dir)
	if err != nil {
		return err
	}
	mem, err := knowledge.NewFileStore(opts.dir, reg).Load(ctx)
	if err != nil {
		return err
	}

	esClient, err := database.NewElasticsearch(opts.es)
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := esClient.Ping(pingCtx); err != nil {
		return err
	}

	store := knowledge.NewElasticsearchStore(esClient.Client, opts.index)
	if err := store.EnsureIndex(ctx); err != nil {
		return err
	}
	for _, doc := range mem.All() {
		if err := store.Index(ctx, doc); err != nil {
			return err
		}
		fmt.Printf("Indexed %s (%s)\n", doc.ID, doc.Category)
	}

	if opts.redisAddr != "" {
		rdb := database.NewRedis(config.RedisConfig{Address: opts.redisAddr})
		defer rdb.Close()
		cache := knowledge.NewCachedStore(store, rdb.Client, time.Minute, logger.NewNoOpLogger())
		if err := cache.Invalidate(ctx, models.Categories...); err != nil {
			return fmt.Errorf("invalidate cache: %w", err)
		}
		fmt.Println("Knowledge cache invalidated.")
	}

	fmt.Printf("Indexed %d policies into %s.\n", len(mem.All()), opts.index)
	return nil
}

func help(w io.Writer) {
	fmt.Fprint(w, `
Usage: kb-indexer <command> [flags]

Commands:
  add       Register a policy file in the manifest
  validate  Validate the manifest and its policy files
  list      List policies by category in lookup order
  index     Load every policy into Elasticsearch
  help      Show this help message

Examples:
  kb-indexer add -id vpn_policy -category IT -title "VPN Policy" -file vpn_policy.txt
  kb-indexer validate -manifest configs/knowledge-base.json -dir knowledge_base
  kb-indexer list -manifest configs/knowledge-base.json
  kb-indexer index -es http://localhost:9200 -index helpdesk-policies -redis localhost:6379

Use 'kb-indexer <command> -h' for more information about a command.
`)
}
