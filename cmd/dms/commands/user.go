package commands

import (
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/display"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/internal/util"
)

// passwordEnv supplies the password for user create when --password is not given
const passwordEnv = "DMS_USER_PASSWORD"

// UserCmd manages accounts directly in the database
var UserCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage DMS user accounts",
	Long: `Manage user accounts without going through the API.

Useful for creating the first admin on a fresh database:
  dms user create --email admin@example.com --name Admin --role admin`,
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user with any role",
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE:  runUserList,
}

var userSetActiveCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Deactivate a user so they can no longer log in",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setUserActive(cmd, args[0], false) },
}

var userActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Reactivate a user",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setUserActive(cmd, args[0], true) },
}

var (
	userDBPath   string
	userEmail    string
	userName     string
	userRole     string
	userPassword string
	userLimit    int
)

func init() {
	UserCmd.PersistentFlags().StringVar(&userDBPath, "db-path", "", "Database path (overrides database.path)")

	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "Full name (required)")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(auth.RoleViewer), "Role: admin, editor, viewer")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (or set "+passwordEnv+")")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("name")

	userListCmd.Flags().IntVar(&userLimit, "limit", 100, "Maximum users to list")
	userListCmd.Flags().Bool("json", false, "Output as JSON")

	UserCmd.AddCommand(userCreateCmd, userListCmd, userSetActiveCmd, userActivateCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	password := userPassword
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return errors.Newf("a password is required (--password or %s)", passwordEnv)
	}
	role, err := auth.ParseRole(userRole)
	if err != nil {
		return err
	}

	a, err := newApp(userDBPath)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.users.CreateUser(cmd.Context(), auth.UserCreate{
		Email:    userEmail,
		Password: password,
		FullName: userName,
		Role:     role,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create user")
	}
	pterm.Success.Printfln("Created %s user %s (id %d)", user.Role, user.Email, user.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	a, err := newApp(userDBPath)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.users.Store().ListUsers(cmd.Context(), 0, userLimit)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), users)
	}
	if len(users) == 0 {
		pterm.Info.Println("No users")
		return nil
	}

	data := pterm.TableData{{"ID", "Email", "Name", "Role", "Active", "Created"}}
	for _, u := range users {
		data = append(data, []string{
			strconv.FormatInt(u.ID, 10),
			u.Email,
			u.FullName,
			string(u.Role),
			strconv.FormatBool(u.IsActive),
			u.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	if total, err := a.users.Store().CountUsers(cmd.Context()); err == nil && total > len(users) {
		pterm.Info.Printfln("Showing %d of %d users", len(users), total)
	}
	return nil
}

func setUserActive(cmd *cobra.Command, rawID string, active bool) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return errors.Newf("invalid user id %q", rawID)
	}

	a, err := newApp(userDBPath)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.users.UpdateUser(cmd.Context(), id, auth.UserUpdate{IsActive: util.Ptr(active)})
	if err != nil {
		return err
	}
	state := "deactivated"
	if user.IsActive {
		state = "activated"
	}
	pterm.Success.Printfln("User %s %s", user.Email, state)
	return nil
}
