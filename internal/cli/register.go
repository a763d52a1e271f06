package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/voss-go/internal/app"
	"github.com/raphaelgruber/voss-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	registerAge         int
	registerGender      string
	registerPersonality string
	registerTone        string
	registerPersona     string
	registerCustom      string
)

var registerCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Create a user account",
	Long: `Create a user account. The password is read from the terminal.

Examples:
  voss register nyx
  voss register nyx --age 16 --tone witty --custom "collects moths"`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().IntVar(&registerAge, "age", 0, "age (default 18)")
	registerCmd.Flags().StringVar(&registerGender, "gender", "", "gender")
	registerCmd.Flags().StringVar(&registerPersonality, "personality", "", "personality notes")
	registerCmd.Flags().StringVarP(&registerTone, "tone", "t", "", "voice: oracle, witty or reflective (default reflective)")
	registerCmd.Flags().StringVar(&registerPersona, "persona", "", "persona override (default a mythic oracle)")
	registerCmd.Flags().StringVar(&registerCustom, "custom", "", "free-form profile text")
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	again, err := readPassword("Repeat password: ")
	if err != nil {
		return err
	}
	if password != again {
		return errors.New("passwords do not match")
	}

	a, err := openApp(ctx, app.Options{})
	if err != nil {
		return err
	}

	user, _, err := a.Identity.Register(ctx, service.RegisterInput{
		Name:        args[0],
		Password:    password,
		Age:         registerAge,
		Gender:      registerGender,
		Personality: registerPersonality,
		Tone:        registerTone,
		Persona:     registerPersona,
		Custom:      registerCustom,
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	fmt.Println(defaultTheme.successStyle().Render("Registered " + user.Username))
	fmt.Printf("  id: %s\n  act: %s\n", user.ActorID(), user.Act)
	return nil
}
