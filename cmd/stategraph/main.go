// =============================================================================
// StateGraph 命令行入口
// =============================================================================
// 使用方法:
//
//	stategraph plan --query "Paris from 2025-07-15 to 2025-07-20"
//	stategraph plan                            # 交互式输入，缺失字段逐项询问
//	stategraph research --query "Latest diabetes treatments?"
//	stategraph product --text "Sony WH-1000XM5 ... $399"
//	stategraph graph --workflow research       # 输出 Mermaid 流程图
//	stategraph history list --workflow travel
//	stategraph history show <run-id>
//	stategraph health
//	stategraph --config stategraph.yaml --metrics-addr :9090 plan -q "..."
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stdin)
	if err := newRootCommand(a).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:                  "stategraph",
		Usage:                 "Run LLM workflows on the state graph engine",
		EnableShellCompletion: true,
		Writer:                a.out,
		ErrWriter:             os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Sources: cli.EnvVars("STATEGRAPH_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve /metrics and /healthz on this address while the command runs",
				Sources: cli.EnvVars("STATEGRAPH_METRICS_ADDR"),
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			planCommand(a),
			researchCommand(a),
			productCommand(a),
			graphCommand(a),
			historyCommand(a),
			healthCommand(a),
			versionCommand(a),
		},
	}
}
