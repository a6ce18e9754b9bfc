package cmd

import (
	"fmt"
	"strconv"

	"stock-sync/core/translate"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// translateCmd groups commands on the catalog id translation cache.
var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Query and edit the catalog id translation cache",
}

var translateLookupCmd = &cobra.Command{
	Use:   "lookup <type> <id>",
	Short: "Show the secondary id of a primary catalog item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, err := parseItemType(args[0])
		if err != nil {
			return err
		}
		return withCache(func(c *translate.Cache, l *zap.Logger) error {
			idB, ok := c.LookupAtoB(itemType, args[1])
			if !ok {
				return fmt.Errorf("no mapping for %c:%s", itemType, args[1])
			}
			fmt.Println(idB)
			return nil
		})
	},
}

var translateReverseCmd = &cobra.Command{
	Use:   "reverse <secondary-id>",
	Short: "Show the primary catalog item of a secondary id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idB, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid secondary id: %w", err)
		}
		return withCache(func(c *translate.Cache, l *zap.Logger) error {
			key, ok := c.LookupBtoA(idB)
			if !ok {
				return fmt.Errorf("no mapping for %d", idB)
			}
			fmt.Println(key)
			return nil
		})
	},
}

var translateRegisterCmd = &cobra.Command{
	Use:   "register <type> <id> <secondary-id>",
	Short: "Record a mapping by hand",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, err := parseItemType(args[0])
		if err != nil {
			return err
		}
		idB, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid secondary id: %w", err)
		}
		return withCache(func(c *translate.Cache, l *zap.Logger) error {
			changed, err := c.Register(itemType, args[1], idB)
			if err != nil {
				return err
			}
			l.Info("Mapping registered", zap.String("item", args[0]+":"+args[1]), zap.Int64("id", idB), zap.Bool("changed", changed))
			return nil
		})
	},
}

var translateStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(c *translate.Cache, l *zap.Logger) error {
			l.Info("Translation cache", zap.Int("entries", c.Len()))
			return nil
		})
	},
}

func init() {
	translateCmd.AddCommand(translateLookupCmd, translateReverseCmd, translateRegisterCmd, translateStatsCmd)
	RootCmd.AddCommand(translateCmd)
}

// withCache opens the configured translation cache for fn. The agent must
// not be running.
func withCache(fn func(c *translate.Cache, l *zap.Logger) error) error {
	cfg, l, err := loadRuntime()
	if err != nil {
		return err
	}
	defer l.Sync()

	cache, err := translate.Open(cfg.Agent.Paths().Translate, l)
	if err != nil {
		return err
	}
	defer cache.Close()
	return fn(cache, l)
}

func parseItemType(s string) (byte, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("item type must be a single letter, got %q", s)
	}
	return s[0], nil
}
