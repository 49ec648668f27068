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
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bilosikia/loongcollector"
)

func Test_Commands(t *testing.T) {

	t.Run("root execute", func(t *testing.T) {
		rootCmd.SetArgs([]string{"help"})
		assert.NotPanics(t, Execute, "help")
	})

	t.Run("test root", func(t *testing.T) {
		b := bytes.NewBufferString("")
		rootCmd.SetOut(b)
		rootCmd.SetArgs([]string{"help"})
		Execute()
		output, _ := io.ReadAll(b)
		assert.Contains(t, string(output), "Available Commands")
		assert.Contains(t, string(output), "agent")
		assert.Contains(t, string(output), "version")
	})

	t.Run("Agent", func(t *testing.T) {
		cmd := NewAgentCommand()
		assert.Equal(t, "agent", cmd.Use)
		assert.True(t, cmd.HasLocalFlags())
		assert.Equal(t, "string", cmd.Flag("config").Value.Type())
		assert.Equal(t, "/etc/loongcollector/loongcollector.yaml", cmd.Flag("config").DefValue)
	})

	t.Run("AgentConfigFromEnv", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/tmp/loong/agent.yaml")
		cmd := NewAgentCommand()
		assert.Equal(t, "/tmp/loong/agent.yaml", cmd.Flag("config").DefValue)
	})

	t.Run("Version", func(t *testing.T) {
		cmd := NewVersionCommand()
		assert.Equal(t, "version", cmd.Use)
		assert.Equal(t, "bool", cmd.Flag("short").Value.Type())
		b := bytes.NewBufferString("")
		cmd.SetOut(b)
		cmd.SetArgs([]string{"--short"})
		assert.NoError(t, cmd.Execute())
		assert.Equal(t, loongcollector.GetVersion().Version+"\n", b.String())
	})
}
