package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"botvac-bridge/internal/account"
	"botvac-bridge/internal/command"
	"botvac-bridge/internal/registry"
	"botvac-bridge/internal/robot"

	"github.com/spf13/cobra"
)

func (a *app) withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func robotsCmd(a *app) *cobra.Command {
	var online bool
	cmd := &cobra.Command{
		Use:   "robots",
		Short: "List the robots of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()

			if online {
				return a.onlineRobots(ctx)
			}
			acct, err := a.login(ctx)
			if err != nil {
				return err
			}
			store := registry.NewMemoryStore()
			if _, err := acct.Sync(ctx, store); err != nil {
				return err
			}
			ids, err := store.List(ctx)
			if err != nil {
				return err
			}
			a.printRobots(ids)
			return nil
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "contact every robot and list only the reachable ones")
	return cmd
}

// onlineRobots opens a session with every robot; offline and unsupported
// robots are left out.
func (a *app) onlineRobots(ctx context.Context) error {
	factory, err := a.robotFactory()
	if err != nil {
		return err
	}
	acct, err := a.login(ctx, account.WithRobotFactory(account.RobotFactory(factory)))
	if err != nil {
		return err
	}
	robots, err := acct.Robots(ctx)
	if err != nil {
		return err
	}
	ids := make([]robot.Identity, len(robots))
	for i, r := range robots {
		ids[i] = r.Identity()
		ids[i].HasPersistentMaps = r.HasPersistentMaps()
	}
	a.printRobots(ids)
	return nil
}

func stateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "state <serial>",
		Short: "Show the robot state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			return a.run(ctx, args[0], command.ActionState, nil)
		},
	}
}

func cleanCmd(a *app) *cobra.Command {
	var mode, navigation string
	var category int
	cmd := &cobra.Command{
		Use:   "clean <serial>",
		Short: "Start a house cleaning run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := cleaningRequest(cmd, mode, navigation, category)
			if err != nil {
				return err
			}
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			return a.run(ctx, args[0], command.ActionStart, req)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "eco|turbo")
	cmd.Flags().StringVar(&navigation, "navigation", "", "normal|extra_care|deep")
	cmd.Flags().IntVar(&category, "category", 0, "2 (whole house) or 4 (floor plan)")
	return cmd
}

// cleaningRequest returns nil when no flag is set so the robot defaults apply.
func cleaningRequest(cmd *cobra.Command, mode, navigation string, category int) (*robot.CleaningRequest, error) {
	if !cmd.Flags().Changed("mode") && !cmd.Flags().Changed("navigation") && !cmd.Flags().Changed("category") {
		return nil, nil
	}
	var req robot.CleaningRequest
	if cmd.Flags().Changed("mode") {
		m, err := robot.ParseCleaningMode(mode)
		if err != nil {
			return nil, err
		}
		req.Mode = m
	}
	if cmd.Flags().Changed("navigation") {
		n, err := robot.ParseNavigationMode(navigation)
		if err != nil {
			return nil, err
		}
		req.NavigationMode = n
	}
	switch robot.Category(category) {
	case 0, robot.CategoryNonPersistent, robot.CategoryPersistent:
		req.Category = robot.Category(category)
	default:
		return nil, fmt.Errorf("--category must be 2 or 4")
	}
	return &req, nil
}

func dockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dock <serial>",
		Short: "Send the robot back to its base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			return a.run(ctx, args[0], command.ActionDock, nil)
		},
	}
}

func scheduleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "schedule <serial> [on|off]",
		Short:     "Show, enable or disable the cleaning schedule",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := command.ActionScheduleStatus
			if len(args) == 2 {
				switch strings.ToLower(args[1]) {
				case "on":
					action = command.ActionScheduleEnable
				case "off":
					action = command.ActionScheduleDisable
				default:
					return fmt.Errorf("schedule takes on or off, got %q", args[1])
				}
			}
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			return a.run(ctx, args[0], action, nil)
		},
	}
}

type mapListing struct {
	Maps []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"maps"`
}

func mapsCmd(a *app) *cobra.Command {
	var download string
	cmd := &cobra.Command{
		Use:   "maps",
		Short: "Print the cleaning maps of every robot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()

			acct, err := a.login(ctx)
			if err != nil {
				return err
			}
			maps, err := acct.Maps(ctx)
			if err != nil {
				return err
			}
			if download == "" {
				a.printJSON(maps)
				return nil
			}

			serials := make([]string, 0, len(maps))
			for serial := range maps {
				serials = append(serials, serial)
			}
			sort.Strings(serials)
			for _, serial := range serials {
				var listing mapListing
				if err := json.Unmarshal(maps[serial], &listing); err != nil {
					return fmt.Errorf("decode maps of %s: %w", serial, err)
				}
				for _, m := range listing.Maps {
					if m.URL == "" {
						continue
					}
					path, err := acct.SaveMapImage(ctx, m.URL, download, "")
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "%s %s\n", serial, path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&download, "download", "", "save map images into this directory")
	return cmd
}
