// Command llamadb is the interactive shell and batch runner for the
// in-process SQL engine. The REPL feeds lines into the incremental
// lexer and executes statements as semicolons arrive, so statements may
// span multiple lines.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	llamadb "github.com/lychee-technology/llamadb"
	"github.com/lychee-technology/llamadb/engine"
	"github.com/lychee-technology/llamadb/internal/lexer"
	"github.com/lychee-technology/llamadb/internal/parser"
	"github.com/lychee-technology/llamadb/internal/printer"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "llamadb",
		Short: "An in-process SQL engine with an interactive shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configPath)
			if err != nil {
				return err
			}
			return runREPL(cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "llamadb.toml", "path to the configuration file")

	execCmd := &cobra.Command{
		Use:   "exec [file.sql]",
		Short: "Execute SQL from a file or stdin and print the results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configPath)
			if err != nil {
				return err
			}
			input := os.Stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				input = f
			}
			sql, err := io.ReadAll(input)
			if err != nil {
				return err
			}
			e := engine.New(llamadb.NewTempDb(), cfg)
			statements, err := parser.ParseSQL(string(sql))
			if err != nil {
				return fmt.Errorf("syntax error: %w", err)
			}
			for _, stmt := range statements {
				result, err := e.ExecuteStatement(stmt)
				if err != nil {
					return err
				}
				if err := printResult(os.Stdout, result, 0); err != nil {
					return err
				}
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the llamadb version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("llamadb", version)
		},
	}

	rootCmd.AddCommand(execCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup(configPath string) (*llamadb.Config, error) {
	cfg, err := llamadb.LoadConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	llamadb.RegisterLogger(logger)
	return cfg, nil
}

func buildLogger(cfg llamadb.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.Set(cfg.Level); err != nil {
		return nil, err
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func runREPL(cfg *llamadb.Config) error {
	e := engine.New(llamadb.NewTempDb(), cfg)
	lex := &lexer.Lexer{}
	scanner := bufio.NewScanner(os.Stdin)
	out := os.Stdout

	for {
		if len(lex.Tokens) == 0 && lex.NoState() {
			fmt.Fprint(out, cfg.REPL.PrimaryPrompt)
		} else {
			fmt.Fprint(out, cfg.REPL.ContinuationPrompt)
		}

		if !scanner.Scan() {
			// EOF (or read error) ends the session.
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		if line == "testdata" && len(lex.Tokens) == 0 && lex.NoState() {
			if err := e.LoadTestData(); err != nil {
				fmt.Fprintln(out, err)
			} else {
				fmt.Fprintln(out, "Test data loaded.")
			}
			continue
		}

		if err := lex.FeedString(line + "\n"); err != nil {
			fmt.Fprintln(out, "syntax error:", err)
			lex.Reset()
			continue
		}

		// Execute every complete statement sitting in the buffer.
		for {
			end := -1
			for i, tok := range lex.Tokens {
				if tok.Kind == lexer.TokenSemicolon {
					end = i
					break
				}
			}
			if end < 0 {
				break
			}
			statement := lex.Tokens[:end+1]
			if err := executeTokens(out, e, statement); err != nil {
				fmt.Fprintln(out, err)
			}
			lex.Tokens = append([]lexer.Token(nil), lex.Tokens[end+1:]...)
		}
	}
}

func executeTokens(out io.Writer, e *engine.Engine, toks []lexer.Token) error {
	stmt, err := parser.ParseStatement(toks)
	if err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}

	start := time.Now()
	result, err := e.ExecuteStatement(stmt)
	if err != nil {
		return fmt.Errorf("execution error: %w", err)
	}
	return printResult(out, result, time.Since(start))
}

func printResult(out io.Writer, result engine.Result, elapsed time.Duration) error {
	duration := fmt.Sprintf("%.3fs", elapsed.Seconds())
	switch r := result.(type) {
	case engine.Created:
		_, err := fmt.Fprintf(out, "Created (%s).\n", duration)
		return err
	case engine.Inserted:
		_, err := fmt.Fprintf(out, "%d rows inserted (%s).\n", r.Rows, duration)
		return err
	case engine.Select:
		names := make([]string, len(r.ColumnNames))
		for i, n := range r.ColumnNames {
			names[i] = n.String()
		}
		rows := make([][]string, len(r.Rows))
		for i, row := range r.Rows {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = displayValue(v)
			}
			rows[i] = cells
		}
		count, err := printer.PrettySelect(out, names, rows, 32)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%d rows selected (%s).\n", count, duration)
		return err
	case engine.Explain:
		_, err := fmt.Fprintln(out, r.Plan)
		return err
	case engine.Describe:
		_, err := fmt.Fprintln(out, r.Schema)
		return err
	default:
		return nil
	}
}

func displayValue(v llamadb.Value) string {
	switch v.Kind() {
	case llamadb.ValueKindNull:
		return "NULL"
	case llamadb.ValueKindBytes:
		return "x'" + hex.EncodeToString(v.AsBytes()) + "'"
	default:
		return v.ToString()
	}
}
