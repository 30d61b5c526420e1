package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/internal/cache"
	"github.com/BaSui01/stategraph/internal/server"
	"github.com/BaSui01/stategraph/persistence"
	"github.com/BaSui01/stategraph/pipelines/product"
	"github.com/BaSui01/stategraph/pipelines/research"
	"github.com/BaSui01/stategraph/workflow"
)

// =============================================================================
// 🧭 工作流命令
// =============================================================================

func planCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Plan a trip from a free-text request",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Travel request, read from the terminal when empty",
			},
			&cli.BoolFlag{
				Name:  "non-interactive",
				Usage: "Never prompt; trip details the model could not extract stay unset",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			planner, err := a.planner()
			if err != nil {
				return err
			}
			interactive := !cmd.Bool("non-interactive")
			input := newTerminalInput(a.in, a.out)

			query := cmd.String("query")
			if query == "" {
				if !interactive {
					return errors.New("--query is required with --non-interactive")
				}
				if query, err = input.ask(ctx, "Enter your travel query: "); err != nil {
					return fmt.Errorf("read query: %w", err)
				}
			}

			var opts []workflow.RunOption
			if interactive {
				opts = append(opts, workflow.WithInput(input))
			}
			plan, res, err := planner.Plan(ctx, query, opts...)
			a.record(ctx, res)
			if err != nil {
				return err
			}
			printPlan(a.out, plan)
			printRunFooter(a.out, res)
			return nil
		},
	}
}

func researchCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "research",
		Usage: "Route a question to a research branch and save the summary",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "query",
				Aliases:  []string{"q"},
				Usage:    "Research question",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			graph, err := a.researchGraph()
			if err != nil {
				return err
			}
			res, err := research.Run(ctx, graph, cmd.String("query"))
			a.record(ctx, res)
			if err != nil {
				return err
			}
			printResearch(a.out, res.State)
			printRunFooter(a.out, res)
			return nil
		},
	}
}

func productCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "product",
		Usage: "Extract a structured product record from free text",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "text",
				Aliases:  []string{"t"},
				Usage:    "Product description",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			graph, err := a.productGraph()
			if err != nil {
				return err
			}
			p, res, err := product.Run(ctx, graph, cmd.String("text"))
			a.record(ctx, res)
			if err != nil {
				return err
			}
			printProduct(a.out, p)
			printRunFooter(a.out, res)
			return nil
		},
	}
}

func graphCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Print a workflow as a Mermaid flowchart",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "workflow",
				Aliases: []string{"w"},
				Usage:   "travel, research or product",
				Value:   "travel",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			graph, err := a.graph(cmd.String("workflow"))
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, graph.Mermaid())
			return nil
		},
	}
}

// =============================================================================
// 📜 运行记录
// =============================================================================

func historyCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect recorded runs",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List runs, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "workflow", Aliases: []string{"w"}, Usage: "Only runs of this workflow"},
					&cli.StringFlag{Name: "status", Usage: "completed, degraded or failed"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum rows", Value: 20},
					&cli.IntFlag{Name: "offset", Usage: "Rows to skip"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					store, err := a.runStore(ctx)
					if err != nil {
						return err
					}
					runs, err := store.ListRuns(ctx, persistence.RunFilter{
						Workflow: cmd.String("workflow"),
						Status:   workflow.ExecutionStatus(cmd.String("status")),
						Limit:    cmd.Int("limit"),
						Offset:   cmd.Int("offset"),
					})
					if err != nil {
						return err
					}
					printRunList(a.out, runs)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show one run with its node executions and final state",
				ArgsUsage: "<run-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return errors.New("run id is required")
					}
					store, err := a.runStore(ctx)
					if err != nil {
						return err
					}
					run, err := store.GetRun(ctx, id)
					if err != nil {
						return fmt.Errorf("run %s: %w", id, err)
					}
					printRun(a.out, run)
					return nil
				},
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a recorded run",
				ArgsUsage: "<run-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return errors.New("run id is required")
					}
					store, err := a.runStore(ctx)
					if err != nil {
						return err
					}
					if err := store.DeleteRun(ctx, id); err != nil {
						return fmt.Errorf("run %s: %w", id, err)
					}
					fmt.Fprintf(a.out, "Deleted run %s\n", id)
					return nil
				},
			},
		},
	}
}

// =============================================================================
// 🏥 健康检查与版本
// =============================================================================

func healthCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the run store, cache and model endpoints",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			checks := a.checks()
			checks["llm"] = a.llmCheck(a.cfg.LLM)
			checks["research_llm"] = a.llmCheck(a.cfg.Research.LLM)

			results := checkAll(ctx, checks)
			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)

			failed := 0
			for _, name := range names {
				if err := results[name]; err != nil {
					failed++
					fmt.Fprintf(a.out, "%-13s FAIL  %v\n", name, err)
				} else {
					fmt.Fprintf(a.out, "%-13s OK\n", name)
				}
			}
			a.printStats(ctx)
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(names))
			}
			return nil
		},
	}
}

// printStats 输出存储、连接池与缓存统计；统计失败不影响命令结果
func (a *app) printStats(ctx context.Context) {
	fmt.Fprintln(a.out, "\nStats:")
	store, err := a.runStore(ctx)
	if err == nil {
		if r, ok := store.(persistence.StatsReporter); ok {
			var st persistence.StoreStats
			if st, err = r.Stats(ctx); err == nil {
				printStoreStats(a.out, st)
			}
		}
	}
	if err != nil {
		fmt.Fprintf(a.out, "  history: unavailable (%v)\n", err)
	}

	if !a.cfg.Cache.Enabled {
		return
	}
	mgr, err := a.cacheManager()
	var cs *cache.Stats
	if err == nil {
		cs, err = mgr.GetStats(ctx)
	}
	if err != nil {
		fmt.Fprintf(a.out, "  cache:   unavailable (%v)\n", err)
		return
	}
	printCacheStats(a.out, cs)
}

func (a *app) llmCheck(c config.LLMConfig) server.CheckFunc {
	return func(ctx context.Context) error {
		p, err := a.provider(c)
		if err != nil {
			return err
		}
		_, err = p.HealthCheck(ctx)
		return err
	}
}

// checkAll 并发执行全部检查，收集每项结果
func checkAll(ctx context.Context, checks map[string]server.CheckFunc) map[string]error {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	results := make(map[string]error, len(checks))
	for name, check := range checks {
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func versionCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Fprintf(a.out, "stategraph %s\n", Version)
			fmt.Fprintf(a.out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(a.out, "  Git Commit: %s\n", GitCommit)
			return nil
		},
	}
}
