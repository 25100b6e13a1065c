// Package configs provides embedded configuration templates for hybridrag.
//
// How Configuration Templates Work:
//
// Templates are embedded at build time using Go's //go:embed directive.
// This ensures they are available in ALL distributions:
//   - Source builds (go install)
//   - Binary releases
//   - Homebrew installations
//
// The templates are used by:
//   - cmd/hybridrag/cmd/config.go → creates user config at ~/.config/hybridrag/config.yaml
//
// No command writes the project template; .hybrid-rag.yaml is copied from it by hand.
//
// Template files:
//   - project-config.example.yaml: Project-specific settings (paths, search, answer contract)
//   - user-config.example.yaml: Machine-specific settings (data dir, Ollama host, MLX)
//
// Configuration Hierarchy (see internal/config/config.go Load()):
//   1. Hardcoded defaults (internal/config/config.go NewConfig())
//   2. User config (~/.config/hybridrag/config.yaml)
//   3. Project config (.hybrid-rag.yaml)
//   4. Environment variables (HYBRIDRAG_*)
//
// To modify templates, edit the .yaml files in this directory and rebuild.
// Changes will be embedded in the next build.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created by: `hybridrag config init` at ~/.config/hybridrag/config.yaml
// Contains: Machine-specific settings like the data directory, Ollama host, MLX endpoint.
// Use case: Settings that apply regardless of which project you're in.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Not written by any command: copy it to .hybrid-rag.yaml in the project root
// Contains: Project-specific settings like paths.exclude, search weights, the
// answer citation contract.
// Use case: Settings that are version-controlled with the project.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
