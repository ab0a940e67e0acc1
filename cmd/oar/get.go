package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/openaccesstools/oar/internal/registry"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show an entity with its synonyms and policies",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

// EntityDetail is the full view of one entity.
type EntityDetail struct {
	Entity   *registry.EntityRecord  `json:"entity"`
	Synonyms []registry.EntityRecord `json:"synonyms,omitempty"`
	OaStatus []registry.PolicyRecord `json:"oa_status,omitempty"`
	Green    []registry.PolicyRecord `json:"green,omitempty"`
	Gold     []registry.PolicyRecord `json:"gold,omitempty"`
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		exitWithError(ExitError, "invalid entity id %q", args[0])
	}

	client, _, closer, err := openBackend()
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	defer closer()

	ctx := context.Background()
	rec, err := client.LookupByID(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		exitWithError(ExitDataError, "entity %d not found", id)
	}
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	detail := EntityDetail{Entity: rec}

	family, err := client.Synonyms(ctx, id)
	if err != nil {
		exitWithError(ExitError, "fetching synonyms: %v", err)
	}
	for _, syn := range family {
		if syn.ID != rec.ID {
			detail.Synonyms = append(detail.Synonyms, syn)
		}
	}

	// Policies live on the Primary entity
	preferred := rec.PreferredID()
	if detail.OaStatus, err = client.LookupPolicies(ctx, registry.OaStatusKind, preferred); err != nil {
		exitWithError(ExitError, "fetching oa_status policies: %v", err)
	}
	if detail.Green, err = client.LookupPolicies(ctx, registry.GreenKind, preferred); err != nil {
		exitWithError(ExitError, "fetching green policies: %v", err)
	}
	if detail.Gold, err = client.LookupPolicies(ctx, registry.GoldKind, preferred); err != nil {
		exitWithError(ExitError, "fetching gold policies: %v", err)
	}

	if humanOutput {
		printEntityHuman(detail)
	} else {
		outputJSON(detail)
	}
	return nil
}

func printEntityHuman(d EntityDetail) {
	e := d.Entity
	fmt.Printf("[%d] %s\n", e.ID, e.Name)
	fmt.Printf("  type:   %s\n", e.Type)
	fmt.Printf("  status: %s\n", e.NameStatus)
	if e.ISSN != "" {
		fmt.Printf("  issn:   %s\n", e.ISSN)
	}
	if e.EISSN != "" {
		fmt.Printf("  eissn:  %s\n", e.EISSN)
	}
	if e.URL != "" {
		fmt.Printf("  url:    %s\n", e.URL)
	}
	if e.ParentID != 0 {
		fmt.Printf("  parent: %d\n", e.ParentID)
	}
	if e.SynonymOfID != 0 {
		fmt.Printf("  synonym of: %d\n", e.SynonymOfID)
	}
	if len(d.Synonyms) > 0 {
		fmt.Println("  synonyms:")
		for _, s := range d.Synonyms {
			fmt.Printf("    [%d] %s (%s)\n", s.ID, s.Name, s.NameStatus)
		}
	}
	fmt.Printf("  policies: %d oa_status, %d green, %d gold\n",
		len(d.OaStatus), len(d.Green), len(d.Gold))
}
