package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/config"
	"github.com/forge/furnace-sub000/internal/graph"
	"github.com/forge/furnace-sub000/internal/repository"
	"github.com/forge/furnace-sub000/internal/versions"
)

var (
	repositoryName string
	apiVersion     string
	dependencies   []string
	optionalDeps   []string
	exportedDeps   []string
	resources      []string
	enableOnDeploy bool
	resolveView    string
)

var addonsCmd = &cobra.Command{
	Use:   "addons",
	Short: "Inspect and modify the addons of configured repositories",
}

var addonsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployed addons",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return listAddons(cmd.OutOrStdout(), cfg, repositoryName)
	},
}

var addonsInstallCmd = &cobra.Command{
	Use:   "install NAME:VERSION",
	Short: "Deploy an addon descriptor into a mutable repository",
	Example: `  furnace addons install org.example:greeter:1.2.0 --repository local \
    --dep "org.example:core@[1.0,2.0)" --dep org.example:theme --optional org.example:theme \
    --resource lib/greeter.so --enable`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, id, err := openMutable(args[0])
		if err != nil {
			return err
		}
		id.APIVersion = versions.Parse(apiVersion)
		deps, err := parseDependencies(dependencies, optionalDeps, exportedDeps)
		if err != nil {
			return err
		}
		if err := repo.Deploy(id, deps, resources); err != nil {
			return err
		}
		if enableOnDeploy {
			if err := repo.Enable(id); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s into %s\n", id, repo.Name())
		return nil
	},
}

var addonsUninstallCmd = &cobra.Command{
	Use:   "uninstall NAME:VERSION",
	Short: "Remove an addon from a mutable repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, id, err := openMutable(args[0])
		if err != nil {
			return err
		}
		if err := repo.Undeploy(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uninstalled %s from %s\n", id, repo.Name())
		return nil
	},
}

var addonsEnableCmd = &cobra.Command{
	Use:   "enable NAME:VERSION",
	Short: "Enable a deployed addon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, id, err := openMutable(args[0])
		if err != nil {
			return err
		}
		return repo.Enable(id)
	},
}

var addonsDisableCmd = &cobra.Command{
	Use:   "disable NAME:VERSION",
	Short: "Disable an addon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, id, err := openMutable(args[0])
		if err != nil {
			return err
		}
		return repo.Disable(id)
	},
}

var addonsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the start order the container would use, without starting anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return resolveAddons(cmd, cfg, resolveView)
	},
}

func init() {
	addonsCmd.PersistentFlags().StringVarP(&repositoryName, "repository", "r", "", "Repository name from the configuration")

	addonsInstallCmd.Flags().StringVar(&apiVersion, "api-version", "", "API version the addon was built against")
	addonsInstallCmd.Flags().StringArrayVar(&dependencies, "dep", nil, "Dependency as name or name@range, repeatable")
	addonsInstallCmd.Flags().StringSliceVar(&optionalDeps, "optional", nil, "Dependency names that are optional")
	addonsInstallCmd.Flags().StringSliceVar(&exportedDeps, "export", nil, "Dependency names exported to dependents")
	addonsInstallCmd.Flags().StringArrayVar(&resources, "resource", nil, "Resource path relative to the addon directory, repeatable")
	addonsInstallCmd.Flags().BoolVar(&enableOnDeploy, "enable", false, "Enable the addon after deploying it")

	addonsResolveCmd.Flags().StringVar(&resolveView, "view", config.DefaultViewName, "View to resolve")

	addonsCmd.AddCommand(addonsListCmd, addonsInstallCmd, addonsUninstallCmd,
		addonsEnableCmd, addonsDisableCmd, addonsResolveCmd)
}

// openMutable opens the --repository directory after checking that the
// configuration allows modifying it.
func openMutable(rawID string) (*repository.Directory, addon.ID, error) {
	id, err := addon.ParseID(rawID)
	if err != nil {
		return nil, addon.ID{}, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, addon.ID{}, err
	}
	if repositoryName == "" {
		return nil, addon.ID{}, fmt.Errorf("--repository is required")
	}
	rc, ok := cfg.Repository(repositoryName)
	if !ok {
		return nil, addon.ID{}, fmt.Errorf("repository %q is not configured", repositoryName)
	}
	if !rc.Mutable {
		return nil, addon.ID{}, fmt.Errorf("repository %q is not mutable", repositoryName)
	}
	repo, err := repository.NewDirectory(rc.Name, rc.Path)
	if err != nil {
		return nil, addon.ID{}, err
	}
	return repo, id, nil
}

// parseDependencies turns "name" and "name@range" specs into entries.
func parseDependencies(specs, optional, exported []string) ([]addon.DependencyEntry, error) {
	isOptional := toSet(optional)
	isExported := toSet(exported)

	entries := make([]addon.DependencyEntry, 0, len(specs))
	for _, spec := range specs {
		name, rangeSpec, _ := strings.Cut(spec, "@")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid dependency %q: name is empty", spec)
		}
		r, err := versions.ParseRange(rangeSpec)
		if err != nil {
			return nil, fmt.Errorf("invalid dependency %q: %w", spec, err)
		}
		entries = append(entries, addon.DependencyEntry{
			Name:     name,
			Range:    r,
			Optional: isOptional[name],
			Exported: isExported[name],
		})
		delete(isOptional, name)
		delete(isExported, name)
	}
	for name := range isOptional {
		return nil, fmt.Errorf("--optional %s does not name a --dep", name)
	}
	for name := range isExported {
		return nil, fmt.Errorf("--export %s does not name a --dep", name)
	}
	return entries, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.TrimSpace(n)] = true
	}
	return set
}

func listAddons(out io.Writer, cfg *config.Config, only string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Repository\tAddon\tVersion\tAPI\tEnabled\tDependencies")

	found := only == ""
	for _, rc := range cfg.Repositories {
		if only != "" && rc.Name != only {
			continue
		}
		found = true
		repo, err := repository.NewDirectory(rc.Name, rc.Path)
		if err != nil {
			return err
		}
		index, err := repo.LoadIndex()
		if err != nil {
			return err
		}
		for _, a := range index.Addons {
			deps := "-"
			if entries, err := repo.Dependencies(a.ID()); err != nil {
				deps = "error: " + err.Error()
			} else if len(entries) > 0 {
				parts := make([]string, len(entries))
				for i, e := range entries {
					parts[i] = e.String()
				}
				deps = strings.Join(parts, "; ")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", rc.Name, a.Name, a.Version, orDash(a.APIVersion), a.Enabled, deps)
		}
	}
	if !found {
		return fmt.Errorf("repository %q is not configured", only)
	}
	return w.Flush()
}

// resolveAddons runs the graph pipeline of one update cycle over the
// configured repositories and prints the outcome.
func resolveAddons(cmd *cobra.Command, cfg *config.Config, view string) error {
	names := make([]string, 0, len(cfg.Repositories))
	for _, rc := range cfg.Repositories {
		names = append(names, rc.Name)
	}
	if view != config.DefaultViewName {
		names = nil
		for _, vc := range cfg.Views {
			if vc.Name == view {
				names = vc.Repositories
			}
		}
		if names == nil {
			return fmt.Errorf("view %q is not configured", view)
		}
	}

	repos := make([]addon.Repository, 0, len(names))
	for _, name := range names {
		rc, _ := cfg.Repository(name)
		repo, err := repository.NewDirectory(rc.Name, rc.Path)
		if err != nil {
			return err
		}
		repos = append(repos, repo)
	}

	strategy, err := cfg.Strategy()
	if err != nil {
		return err
	}
	builder, err := graph.NewBuilder(cfg.Runtime(), strategy, 0)
	if err != nil {
		return err
	}
	candidates, err := builder.Build(cmd.Context(), repos)
	if err != nil {
		return err
	}
	optimized := graph.Optimize(candidates)
	master := graph.NewMasterGraph(1)
	master.Merge(view, optimized)

	out := cmd.OutOrStdout()
	order, cyclic := master.TopologicalOrder()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tAddon\tRepository\tMissing")
	for i, id := range order {
		v, _ := master.Vertex(id)
		missing := make([]string, 0)
		for _, e := range v.Missing() {
			missing = append(missing, e.String())
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, id, v.RepositoryName(), orDash(strings.Join(missing, "; ")))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, id := range cyclic {
		fmt.Fprintf(out, "cycle: %s\n", id)
	}
	for _, c := range optimized.Conflicts() {
		fmt.Fprintf(out, "conflict: %s: %v\n", c.Name, c.Err)
	}
	for _, p := range candidates.Problems() {
		fmt.Fprintf(out, "skipped: %s (%s): %v\n", p.ID, p.Repository, p.Err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
