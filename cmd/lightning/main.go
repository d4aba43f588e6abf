// Command lightning is the user-facing CLI: it logs in to the hub, lists
// registered app instances, and resolves an app identifier (URL, name, id,
// or nothing at all) to a live endpoint in order to inspect or run the
// commands the app exposes.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Helias/lightning/appserver"
	"github.com/Helias/lightning/client"
	"github.com/Helias/lightning/cliutil"
	"github.com/Helias/lightning/resolve"
)

const defaultHubURL = "http://localhost:8099"

// stringList collects repeated flag values.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `lightning CLI

Usage:
  %s <command> [options]

Commands:
  login      Log in to the hub
  list       List app instances of the current project
  commands   Show the command manifest of an app
  run        Run a command on an app

Run '%s <command> -h' for command options.
`, os.Args[0], os.Args[0])
}

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "login":
		err = cmdLogin(os.Args[2:])
	case "list":
		err = cmdList(os.Args[2:])
	case "commands":
		err = cmdCommands(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	hubURL := fs.String("hub", defaultHubURL, "Hub base URL")
	username := fs.String("username", "", "Username (required)")
	fs.Parse(args)

	if *username == "" {
		return fmt.Errorf("username is required")
	}
	password := os.Getenv("LIGHTNING_PASSWORD")
	if password == "" {
		return fmt.Errorf("set LIGHTNING_PASSWORD to your password")
	}

	c := client.New(*hubURL)
	if err := c.Login(context.Background(), *username, password); err != nil {
		return err
	}
	log.Printf("Logged in to %s as %s", *hubURL, *username)
	return nil
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	hubURL := fs.String("hub", defaultHubURL, "Hub base URL")
	fs.Parse(args)

	c := client.New(*hubURL)
	ctx := context.Background()

	project, err := c.CurrentProject(ctx)
	if err != nil {
		return err
	}
	instances, err := c.ListInstances(ctx, project.ID)
	if err != nil {
		return err
	}

	if len(instances) == 0 {
		log.Printf("No app instances registered in project %s", project.Name)
		return nil
	}
	log.Printf("%-36s  %-20s  %-10s  %s", "ID", "NAME", "PHASE", "URL")
	for _, instance := range instances {
		log.Printf("%-36s  %-20s  %-10s  %s", instance.ID, instance.Name, instance.Status.Phase, instance.Status.URL)
	}
	return nil
}

func cmdCommands(args []string) error {
	fs := flag.NewFlagSet("commands", flag.ExitOnError)
	hubURL := fs.String("hub", defaultHubURL, "Hub base URL")
	app := fs.String("app", "", "App id, name or URL (optional, defaults to the local app server)")
	fs.Parse(args)

	endpoint, manifest, err := resolveApp(context.Background(), *hubURL, *app, false)
	if err != nil {
		return err
	}
	if endpoint == "" {
		return fmt.Errorf("no app matching %q was found", *app)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, manifest, "", "  "); err != nil {
		// Not valid JSON after all, print it raw.
		log.Printf("Commands at %s:\n%s", endpoint, manifest)
		return nil
	}
	log.Printf("Commands at %s:\n%s", endpoint, pretty.String())
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	hubURL := fs.String("hub", defaultHubURL, "Hub base URL")
	app := fs.String("app", "", "App id, name or URL (optional, defaults to the local app server)")
	command := fs.String("command", "", "Command name to run (required)")
	var argList, envList stringList
	fs.Var(&argList, "arg", "Command argument as key=value (repeatable)")
	fs.Var(&envList, "env", "Environment variable as key=value (repeatable)")
	fs.Parse(args)

	if *command == "" {
		return fmt.Errorf("command name is required")
	}

	cmdArgs, err := cliutil.ParseEnvVariables(argList)
	if err != nil {
		return fmt.Errorf("invalid -arg: %w", err)
	}
	env, err := cliutil.ParseEnvVariables(envList)
	if err != nil {
		return fmt.Errorf("invalid -env: %w", err)
	}

	ctx := context.Background()
	endpoint, _, err := resolveApp(ctx, *hubURL, *app, true)
	if err != nil {
		return err
	}
	if endpoint == "" {
		return fmt.Errorf("no app matching %q was found", *app)
	}

	body, err := json.Marshal(appserver.ExecuteRequest{Args: cmdArgs, Env: env})
	if err != nil {
		return fmt.Errorf("failed to marshal command request: %w", err)
	}
	resp, err := http.Post(fmt.Sprintf("%s/api/v1/commands/%s", endpoint, *command), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("command request failed: %w", err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	out.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("command %q failed with status %d: %s", *command, resp.StatusCode, out.String())
	}
	log.Printf("%s", out.String())
	return nil
}

// resolveApp resolves an app identifier to an endpoint and manifest. The
// resolver itself never retries; when wait is set, a just-starting instance
// is polled with exponential backoff until it has an address.
func resolveApp(ctx context.Context, hubURL, app string, wait bool) (string, resolve.Manifest, error) {
	identifier := resolve.ParseIdentifier(app, app != "")
	resolver := resolve.NewResolver(client.New(hubURL))

	var endpoint string
	var manifest resolve.Manifest

	operation := func() error {
		var err error
		endpoint, manifest, err = resolver.Resolve(ctx, identifier)
		if err == nil {
			return nil
		}
		if wait && resolve.IsNotReadyError(err) {
			log.Printf("App is starting, waiting...")
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", nil, err
	}
	return endpoint, manifest, nil
}
