package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginEmail string
	signupName string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in",
	Long: `Sign in with an email address and password. Credentials are only checked
for shape (a valid address, a password of at least 6 characters); a session
token is then stored locally and used by the other commands and the API server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(false)
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	Long:  `Like login, but also asks for a display name.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(true)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Auth.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func authenticate(signup bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	in := bufio.NewReader(os.Stdin)
	name := signupName
	if signup && name == "" {
		if name, err = ask(in, "Name: "); err != nil {
			return err
		}
	}
	email := loginEmail
	if email == "" {
		if email, err = ask(in, "Email: "); err != nil {
			return err
		}
	}
	password, err := askPassword(in, "Password: ")
	if err != nil {
		return err
	}

	if signup {
		_, err = a.Auth.Signup(name, email, password)
	} else {
		_, err = a.Auth.Login(email, password)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s.\n", strings.TrimSpace(email))
	return nil
}

func ask(in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// askPassword reads without echo when stdin is a terminal.
func askPassword(in *bufio.Reader, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ask(in, label)
	}
	fmt.Fprint(os.Stderr, label)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email address (prompted when omitted)")
	signupCmd.Flags().StringVar(&loginEmail, "email", "", "Email address (prompted when omitted)")
	signupCmd.Flags().StringVar(&signupName, "name", "", "Display name (prompted when omitted)")
}
