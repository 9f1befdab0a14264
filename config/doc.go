// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config reads layered configuration into structs.
//
// A [Source] applies its key value pairs to a [Store]. Sources are applied
// in order so later sources override earlier ones, and the merged result is
// decoded into a struct through its `config` field tags:
//
//	m, err := config.Read(
//	    config.Map{"http": map[string]any{"readTimeout": "5s"}},
//	    config.FromYaml(config.RenderTextTemplate(
//	        config.NewFileReader(afero.NewOsFs(), "kiln.yaml"),
//	        config.TemplateFunc("env", os.Getenv),
//	    )),
//	)
//	if err != nil {
//	    return err
//	}
//
//	var cfg kiln.Config
//	err = m.Unmarshal(&cfg)
//
// Strings are decoded into [time.Duration] fields with [time.ParseDuration]
// and into any type implementing [encoding.TextUnmarshaler], such as
// [log/slog.Level].
package config
