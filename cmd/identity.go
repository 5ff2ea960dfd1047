package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/psds-microservice/agri-support-service/internal/application"
	"github.com/psds-microservice/agri-support-service/internal/identity"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/spf13/cobra"
)

// Identities are owned by the account system; these commands seed and
// inspect the local directory the service authorizes against.
var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage the identity directory",
}

var identityAddCmd = &cobra.Command{
	Use:     "add <username>",
	Short:   "Create or update an identity",
	Example: "  agri-support identity add officer_a --roles AGENT --id-number GO-17",
	Args:    cobra.ExactArgs(1),
	RunE:    runIdentityAdd,
}

var identityImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update identities listed in a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityImport,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities",
	RunE:  runIdentityList,
}

var (
	identityRoles    string
	identityIDNumber string
)

func init() {
	identityAddCmd.Flags().StringVar(&identityRoles, "roles", string(model.RoleRequester), "comma separated roles: REQUESTER, AGENT, OVERSEER")
	identityAddCmd.Flags().StringVar(&identityIDNumber, "id-number", "", "officer identification number")
	identityCmd.AddCommand(identityAddCmd)
	identityCmd.AddCommand(identityImportCmd)
	identityCmd.AddCommand(identityListCmd)
}

func runIdentityAdd(cmd *cobra.Command, args []string) error {
	roles, err := model.ParseRoleSet(identityRoles)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		return errors.New("identity: at least one role is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := application.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ident := &model.Identity{Username: strings.TrimSpace(args[0]), Roles: roles}
	if n := strings.TrimSpace(identityIDNumber); n != "" {
		ident.IdentificationNumber = &n
	}
	if err := st.SaveIdentity(cmd.Context(), ident); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", ident.ID, ident.Username, ident.Roles)
	return nil
}

func runIdentityImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	defer f.Close()
	idents, err := identity.DecodeSeed(f)
	if err != nil {
		return fmt.Errorf("identity: %s: %w", args[0], err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := application.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	for i := range idents {
		if err := st.SaveIdentity(cmd.Context(), &idents[i]); err != nil {
			return fmt.Errorf("identity: %s: %w", idents[i].Username, err)
		}
	}
	log.Printf("identity import: saved %d identities", len(idents))
	return nil
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := application.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	idents, err := st.ListIdentities(cmd.Context())
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tROLES\tID NUMBER")
	for _, i := range idents {
		idNo := "-"
		if i.IdentificationNumber != nil {
			idNo = *i.IdentificationNumber
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i.ID, i.Username, i.Roles, idNo)
	}
	return w.Flush()
}

