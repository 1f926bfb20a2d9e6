package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/itohio/energymon/pkg/link"
)

func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ports",
		Short:   "List serial ports",
		GroupID: gAcquisition,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := link.Ports()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				cmd.Println("No serial ports found.")
				return nil
			}

			for _, p := range ports {
				name := bold("%s", p.Name)
				if p.Name == cfg.Serial.Port {
					name = color.New(color.Bold, color.FgGreen).Sprintf("%s (configured)", p.Name)
				}
				if p.Description != "" && p.Description != p.Name {
					cmd.Printf("  %s  %s\n", name, p.Description)
				} else {
					cmd.Printf("  %s\n", name)
				}
			}
			return nil
		},
	}
}
