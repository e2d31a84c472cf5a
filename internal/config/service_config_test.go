package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockServiceConfig struct {
	calls       []string
	configDir   string
	validateErr error
}

func (m *mockServiceConfig) ApplyDefaults()     { m.calls = append(m.calls, "defaults") }
func (m *mockServiceConfig) ApplyEnvOverrides() { m.calls = append(m.calls, "env") }

func (m *mockServiceConfig) ResolvePaths(configDir string) {
	m.calls = append(m.calls, "paths")
	m.configDir = configDir
}

func (m *mockServiceConfig) Validate() error {
	m.calls = append(m.calls, "validate")
	return m.validateErr
}

func TestApplyServiceConfigs_AllMethodsCalledInOrder(t *testing.T) {
	cfg1 := &mockServiceConfig{}
	cfg2 := &mockServiceConfig{}

	err := ApplyServiceConfigs("config", cfg1, cfg2)

	assert.NoError(t, err)
	for _, c := range []*mockServiceConfig{cfg1, cfg2} {
		assert.Equal(t, []string{"defaults", "env", "paths", "validate"}, c.calls)
		assert.Equal(t, "config", c.configDir)
	}
}

func TestApplyServiceConfigs_StopsAtValidationError(t *testing.T) {
	cfg1 := &mockServiceConfig{validateErr: assert.AnError}
	cfg2 := &mockServiceConfig{}

	err := ApplyServiceConfigs("config", cfg1, cfg2)

	assert.Equal(t, assert.AnError, err)
	assert.Empty(t, cfg2.calls)
}

func TestApplyServiceConfigs_EmptyList(t *testing.T) {
	assert.NoError(t, ApplyServiceConfigs("config"))
}
