package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/virtserve/virtserve/internal/storage"
	"github.com/virtserve/virtserve/pkg/virt"
)

// expandGlob expands a glob pattern into matching file paths.
// Supports ** recursive patterns via doublestar.
func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return doublestar.FilepathGlob(pattern)
	}
	return filepath.Glob(pattern)
}

// ResolveDefinitionFiles expands the configured definition globs into a
// sorted, de-duplicated list of file paths.
func (c *Config) ResolveDefinitionFiles() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range c.Definitions {
		matches, err := expandGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		for _, match := range matches {
			if !seen[match] {
				seen[match] = true
				files = append(files, match)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadDefinitionFile parses one definition YAML file.
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &def, nil
}

// Seed writes the definition's endpoints, rules, scenarios and proxy
// configurations into the repository. Missing IDs are generated.
func Seed(ctx context.Context, repo storage.Repository, def *Definition) error {
	for i := range def.Endpoints {
		if err := seedEndpoint(ctx, repo, &def.Endpoints[i]); err != nil {
			return err
		}
	}
	for i := range def.Scenarios {
		if err := seedScenario(ctx, repo, &def.Scenarios[i]); err != nil {
			return err
		}
	}
	for i := range def.Proxies {
		if err := seedProxy(ctx, repo, &def.Proxies[i]); err != nil {
			return err
		}
	}
	return nil
}

// SeedFiles resolves the configured definition globs, parses each file and
// seeds the repository with its contents.
func (c *Config) SeedFiles(ctx context.Context, repo storage.Repository) error {
	files, err := c.ResolveDefinitionFiles()
	if err != nil {
		return err
	}
	for _, path := range files {
		def, err := LoadDefinitionFile(path)
		if err != nil {
			return err
		}
		if err := Seed(ctx, repo, def); err != nil {
			return fmt.Errorf("seeding %s: %w", path, err)
		}
	}
	return nil
}

func seedEndpoint(ctx context.Context, repo storage.Repository, def *EndpointDef) error {
	if def.Method == "" || def.Path == "" {
		return fmt.Errorf("endpoint %q: method and path are required", def.Name)
	}
	protocol := def.Protocol
	if protocol == "" {
		protocol = virt.ProtocolREST
	}
	ep := &virt.Endpoint{
		ID:            def.ID,
		ServiceID:     def.ServiceID,
		Name:          def.Name,
		Method:        strings.ToUpper(def.Method),
		Path:          def.Path,
		Protocol:      protocol,
		Active:        activeOrTrue(def.Active),
		DefaultStatus: def.DefaultStatus,
		DefaultBody:   string(def.DefaultBody),
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.Name == "" {
		ep.Name = ep.Method + " " + ep.Path
	}
	if err := repo.CreateEndpoint(ctx, ep); err != nil {
		return fmt.Errorf("creating endpoint %s: %w", ep.Name, err)
	}

	for i := range def.Rules {
		if err := seedRule(ctx, repo, ep.ID, &def.Rules[i]); err != nil {
			return err
		}
	}
	return nil
}

func seedRule(ctx context.Context, repo storage.Repository, endpointID string, def *RuleDef) error {
	conditions, err := encodeConditions(def.Conditions)
	if err != nil {
		return fmt.Errorf("rule %q: %w", def.Name, err)
	}
	headers, err := encodeHeaders(def.Headers)
	if err != nil {
		return fmt.Errorf("rule %q: %w", def.Name, err)
	}
	faultConfig, err := encodeFaultConfig(def.FaultConfig)
	if err != nil {
		return fmt.Errorf("rule %q: %w", def.Name, err)
	}

	logicMode := def.LogicMode
	if logicMode == "" {
		logicMode = virt.LogicAnd
	}
	rule := &virt.Rule{
		ID:              def.ID,
		EndpointID:      endpointID,
		Name:            def.Name,
		Priority:        def.Priority,
		LogicMode:       logicMode,
		Conditions:      conditions,
		Status:          def.Status,
		Body:            string(def.Body),
		Headers:         headers,
		DelayMs:         def.DelayMs,
		TemplateBody:    def.TemplateBody,
		TemplateHeaders: def.TemplateHeaders,
		Fault:           def.Fault,
		FaultConfig:     faultConfig,
		Active:          activeOrTrue(def.Active),
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := repo.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("creating rule %s: %w", rule.ID, err)
	}
	return nil
}

func seedProxy(ctx context.Context, repo storage.Repository, def *ProxyDef) error {
	if def.TargetBaseURL == "" {
		return fmt.Errorf("proxy config %q: targetBaseUrl is required", def.ID)
	}
	cfg := &virt.ProxyConfig{
		ID:              def.ID,
		EndpointID:      def.EndpointID,
		TargetBaseURL:   def.TargetBaseURL,
		Active:          activeOrTrue(def.Active),
		Recording:       def.Recording,
		ForwardHeaders:  def.ForwardHeaders,
		ExtraHeaders:    def.ExtraHeaders,
		TimeoutMs:       def.TimeoutMs,
		StripPathPrefix: def.StripPathPrefix,
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if err := repo.SaveProxyConfig(ctx, cfg); err != nil {
		return fmt.Errorf("saving proxy config %s: %w", cfg.ID, err)
	}
	return nil
}

func seedScenario(ctx context.Context, repo storage.Repository, def *ScenarioDef) error {
	if def.InitialState == "" {
		return fmt.Errorf("scenario %q: initialState is required", def.Name)
	}
	sc := &virt.Scenario{
		ID:           def.ID,
		Name:         def.Name,
		InitialState: def.InitialState,
		CurrentState: def.InitialState,
		Active:       activeOrTrue(def.Active),
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if err := repo.CreateScenario(ctx, sc); err != nil {
		return fmt.Errorf("creating scenario %s: %w", sc.Name, err)
	}

	for i := range def.Steps {
		stepDef := &def.Steps[i]
		if stepDef.StateName == "" || stepDef.EndpointID == "" {
			return fmt.Errorf("scenario %q: step %d: stateName and endpointId are required", def.Name, i)
		}
		conditions, err := encodeConditions(stepDef.Conditions)
		if err != nil {
			return fmt.Errorf("scenario %q: step %d: %w", def.Name, i, err)
		}
		headers, err := encodeHeaders(stepDef.Headers)
		if err != nil {
			return fmt.Errorf("scenario %q: step %d: %w", def.Name, i, err)
		}
		logicMode := stepDef.LogicMode
		if logicMode == "" {
			logicMode = virt.LogicAnd
		}
		step := &virt.ScenarioStep{
			ID:         stepDef.ID,
			ScenarioID: sc.ID,
			StateName:  stepDef.StateName,
			EndpointID: stepDef.EndpointID,
			Priority:   stepDef.Priority,
			LogicMode:  logicMode,
			Conditions: conditions,
			NextState:  stepDef.NextState,
			Status:     stepDef.Status,
			Body:       string(stepDef.Body),
			Headers:    headers,
		}
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		if err := repo.CreateStep(ctx, step); err != nil {
			return fmt.Errorf("creating step %s: %w", step.ID, err)
		}
	}
	return nil
}
