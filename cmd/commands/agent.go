/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	"github.com/bilosikia/loongcollector"
	"github.com/bilosikia/loongcollector/pkg/agent"
	"github.com/bilosikia/loongcollector/pkg/shared/logging"
	"github.com/bilosikia/loongcollector/pkg/shared/util"
)

const (
	// EnvConfigPath overrides the default of the --config flag
	EnvConfigPath     = "LOONG_CONFIG"
	defaultConfigPath = "/etc/loongcollector/loongcollector.yaml"
)

func NewAgentCommand() *cobra.Command {
	var configPath string

	command := &cobra.Command{
		Use:   "agent",
		Short: "Start the collection agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("agent")
			log.Infow("Starting loongcollector agent", "version", loongcollector.GetVersion(), "config", configPath)
			a := &agent.Agent{ConfigPath: configPath}
			ctx := logging.WithLogger(signals.SetupSignalHandler(), log)
			return a.Start(ctx)
		},
	}
	command.Flags().StringVar(&configPath, "config", util.LookupEnvStringOr(EnvConfigPath, defaultConfigPath), "Path to the agent configuration file")
	return command
}
