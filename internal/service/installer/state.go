package installer

import "maps"

// InstallState collects the env values chosen so far. Values present from
// the start are treated as already answered.
type InstallState struct {
	EnvVars map[string]string
}

func NewInstallState(preset map[string]string) *InstallState {
	s := &InstallState{EnvVars: make(map[string]string, len(preset))}
	maps.Copy(s.EnvVars, preset)
	return s
}

func (s *InstallState) has(key string) bool {
	return s.EnvVars[key] != ""
}

// uses reports whether either the embedding or the extraction side picked
// provider.
func (s *InstallState) uses(provider string) bool {
	return s.EnvVars[envEmbeddingProvider] == provider || s.EnvVars[envExtractionProvider] == provider
}
