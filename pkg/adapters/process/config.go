// Package process drives devices through an external bridge executable.
//
// The bridge is invoked once per operation:
//
//	<command> <args...> actuate <entity_id>   (command JSON on stdin)
//	<command> <args...> query <entity_id>     (attributes JSON on stdout)
//
// The command fields are also exported as AUTOTRON_* environment variables so
// simple shell bridges need no JSON parsing. Exit status 3 means the device is
// unreachable; any other failure is reported with the bridge's stderr.
package process

// Config describes the bridge executable.
type Config struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
	Dir     string            `yaml:"dir" json:"dir"`
}

// Enabled reports whether a bridge command is configured.
func (c Config) Enabled() bool {
	return c.Command != ""
}
