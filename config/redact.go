package config

import (
	"net/url"
	"slices"
	"strings"
)

// Redacted returns a copy safe to show over the API. Expanded environment
// values are put back as ${NAME} references and URL passwords are masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Env = nil
	out.Monitoring.RemoteWriteURL = redactURL(c.Monitoring.RemoteWriteURL)
	out.Hosts = slices.Clone(c.Hosts)
	out.Roles = slices.Clone(c.Roles)
	out.Server.Cron = slices.Clone(c.Server.Cron)

	out.Components = make([]ComponentConfig, len(c.Components))
	for i, cc := range c.Components {
		restore := c.unexpander(cc.RequiredEnv)
		cc.Phases = make(map[string][]StepConfig, len(c.Components[i].Phases))
		for phase, steps := range c.Components[i].Phases {
			steps = slices.Clone(steps)
			for j := range steps {
				s := &steps[j]
				for _, field := range []*string{&s.Run, &s.Dir, &s.Creates, &s.Removes, &s.SkipIf, &s.Confirm} {
					*field = restore.Replace(*field)
				}
			}
			cc.Phases[phase] = steps
		}
		if r := cc.Readiness; r != nil {
			rc := *r
			rc.HTTP = redactURL(restore.Replace(rc.HTTP))
			rc.Command = restore.Replace(rc.Command)
			cc.Readiness = &rc
		}
		out.Components[i] = cc
	}
	return &out
}

// unexpander maps the values of names back to their references.
func (c *Config) unexpander(names []string) *strings.Replacer {
	var pairs []string
	for _, name := range names {
		if v := c.Env[name]; v != "" {
			pairs = append(pairs, v, "${"+name+"}")
		}
	}
	return strings.NewReplacer(pairs...)
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
