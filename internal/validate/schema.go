// Package validate checks configuration and access transformer rule sets
// before a run starts, reporting every problem found at once.
package validate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"jarforge/internal/atrules"
	"jarforge/internal/classfile"
	"jarforge/internal/config"
)

// Config validates a loaded configuration:
//
//   - cache_dir must be set.
//   - type must be merged, client or server; invalidation resume or strict.
//   - workers and merge.diff_max_bytes must not be negative.
//   - The patch set and the jars needed by the type must be set and exist.
//     Optional inputs must exist when set.
//   - A mappings path needs distinct from/to namespaces.
//   - logging.level and logging.format must be known values.
//
// All problems are joined into one error.
func Config(c *config.Config) error {
	var errs errlist

	if strings.TrimSpace(c.CacheDir) == "" {
		errs.add("cache_dir must be non-empty")
	}
	switch c.Type {
	case config.TypeMerged, config.TypeClient, config.TypeServer:
	default:
		errs.add("type must be one of merged, client, server (got %q)", c.Type)
	}
	switch c.Invalidation {
	case config.PolicyResume, config.PolicyStrict:
	default:
		errs.add("invalidation must be resume or strict (got %q)", c.Invalidation)
	}
	if c.Workers < 0 {
		errs.add("workers must be >= 0 (got %d)", c.Workers)
	}
	if c.Merge.DiffMaxBytes < 0 {
		errs.add("merge.diff_max_bytes must be >= 0 (got %d)", c.Merge.DiffMaxBytes)
	}

	needClient := c.Type == config.TypeMerged || c.Type == config.TypeClient
	needServer := c.Type == config.TypeMerged || c.Type == config.TypeServer
	checkInput(&errs, "inputs.patches", c.Inputs.Patches, true)
	checkInput(&errs, "inputs.client_jar", c.Inputs.ClientJar, needClient)
	checkInput(&errs, "inputs.server_jar", c.Inputs.ServerJar, needServer)
	checkInput(&errs, "inputs.access_transformer", c.Inputs.AccessTransformer, false)
	checkInput(&errs, "inputs.universal", c.Inputs.Universal, false)

	if c.Mappings.Path != "" {
		checkInput(&errs, "mappings.path", c.Mappings.Path, true)
		if c.Mappings.From == "" || c.Mappings.To == "" {
			errs.add("mappings.from and mappings.to must be set when mappings.path is")
		} else if c.Mappings.From == c.Mappings.To {
			errs.add("mappings.from and mappings.to must differ (both %q)", c.Mappings.From)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs.add("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs.add("logging.format must be console or json (got %q)", c.Logging.Format)
	}

	return errs.err()
}

func checkInput(errs *errlist, key, path string, required bool) {
	if path == "" {
		if required {
			errs.add("%s must be set", key)
		}
		return
	}
	st, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		errs.add("%s: %s does not exist", key, path)
	case err != nil:
		errs.add("%s: %v", key, err)
	case st.IsDir():
		errs.add("%s: %s is a directory", key, path)
	}
}

// Rules validates an access transformer rule set:
//
//   - Class names are non-empty and contain no '.' or ';'.
//   - Method descriptors parse.
//   - A target must not ask for both +f and -f.
func Rules(s *atrules.Set) error {
	var errs errlist

	type target struct {
		name atrules.QualifiedName
		kind atrules.Kind
	}
	finals := make(map[target]atrules.Final)
	for i, r := range s.Rules {
		prefix := fmt.Sprintf("rules[%d] (%s)", i, r)
		c := r.Target.Class
		if c == "" {
			errs.add("%s: class must be non-empty", prefix)
		}
		if strings.ContainsAny(c, ".;[") {
			errs.add("%s: class %q is not a valid internal name", prefix, c)
		}
		if r.Kind == atrules.KindMethod {
			if _, err := classfile.ParamCount(r.Target.Desc); err != nil {
				errs.add("%s: malformed method descriptor %q", prefix, r.Target.Desc)
			}
		}
		if r.Final == atrules.FinalKeep {
			continue
		}
		key := target{r.Target, r.Kind}
		if prev, ok := finals[key]; ok && prev != r.Final {
			errs.add("%s: conflicting final modifiers for %s", prefix, r.Target)
		}
		finals[key] = r.Final
	}

	return errs.err()
}

// errlist collects validation messages.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(e.msgs, "\n"))
}
