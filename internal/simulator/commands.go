package simulator

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/joho/godotenv"
)

const (
	defaultEnvironmentCommand = "source {{.Setup}} && ros2 launch {{.LaunchPackage}} {{.LaunchFile}} " +
		"ur_type:=ur5e launch_rviz:=false gazebo_gui:=true world_path:={{.World}}"
	defaultUserCommand      = "source {{.Setup}} && ros2 run {{.Package}} {{.Executable}}"
	defaultTelemetryCommand = "source {{.Setup}} && ros2 topic echo {{.Topic}} --once"
)

// commandData contains fields available in command templates.
type commandData struct {
	Setup         string
	World         string
	LaunchPackage string
	LaunchFile    string
	Package       string
	Executable    string
	Topic         string
	Workspace     string
}

type commandTemplates struct {
	environment *template.Template
	user        *template.Template
	telemetry   *template.Template
}

func parseCommand(name, text, fallback string) (*template.Template, error) {
	if text == "" {
		text = fallback
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s command: %w", name, err)
	}
	return tmpl, nil
}

func parseCommands(environment, user, telemetry string) (commandTemplates, error) {
	var templates commandTemplates
	var err error
	if templates.environment, err = parseCommand("environment", environment, defaultEnvironmentCommand); err != nil {
		return commandTemplates{}, err
	}
	if templates.user, err = parseCommand("user", user, defaultUserCommand); err != nil {
		return commandTemplates{}, err
	}
	if templates.telemetry, err = parseCommand("telemetry", telemetry, defaultTelemetryCommand); err != nil {
		return commandTemplates{}, err
	}
	return templates, nil
}

func renderCommand(tmpl *template.Template, data commandData) (string, error) {
	var builder strings.Builder
	if err := tmpl.Execute(&builder, data); err != nil {
		return "", fmt.Errorf("cannot render %s command: %w", tmpl.Name(), err)
	}
	return builder.String(), nil
}

// readEnvFile reads dotenv file into list of "KEY=value" pairs.
func readEnvFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read env file: %w", err)
	}
	environ := make([]string, 0, len(values))
	for key, value := range values {
		environ = append(environ, key+"="+value)
	}
	sort.Strings(environ)
	return environ, nil
}
