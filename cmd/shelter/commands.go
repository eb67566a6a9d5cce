package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shelter/internal/app"
	"shelter/internal/domain"
	"shelter/internal/engine"
	"shelter/internal/engine/auth"
	"shelter/internal/repo"
	"shelter/internal/server"
)

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users and credentials"}
	usr.AddCommand(userBootstrapCmd())
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userListCmd())
	usr.AddCommand(userShowCmd())
	usr.AddCommand(userDeleteCmd())
	usr.AddCommand(userKeyCmd())
	usr.AddCommand(userKeysCmd())
	usr.AddCommand(userRevokeCmd())
	usr.AddCommand(userTokenCmd())
	return usr
}

func userBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap <username>",
		Short: "Create the first administrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.BootstrapAdmin(ctx, args[0])
				if err != nil {
					return err
				}
				return printUsers(u, []domain.User{u})
			})
		},
	}
}

func userCreateCmd() *cobra.Command {
	var in engine.UserInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (administrators only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				u, err := a.Engine.CreateUser(ctx, actor, in)
				if err != nil {
					return err
				}
				return printUsers(u, []domain.User{u})
			})
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "username")
	cmd.Flags().StringVar(&in.Role, "role", domain.RoleAdopter, "admin, volunteer or adopter")
	cmd.Flags().BoolVar(&in.HasExperience, "has-experience", false, "has kept pets before")
	cmd.Flags().BoolVar(&in.HasOtherPets, "has-other-pets", false, "keeps other pets now")
	cmd.Flags().StringVar(&in.ReadyForPet, "ready-for-pet", "", "which pet the adopter is ready for")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				users, err := a.Engine.ListUsers(ctx, actor)
				if err != nil {
					return err
				}
				return printUsers(users, users)
			})
		},
	}
}

func userShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				u, err := a.Engine.GetUser(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printUsers(u, []domain.User{u})
			})
		},
	}
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user and their requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.DeleteUser(ctx, actor, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func userKeyCmd() *cobra.Command {
	var name, userID string
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Issue an API key; the plaintext is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				key, plain, err := a.Engine.IssueAPIKey(ctx, actor, userID, name)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"id": key.ID, "user_id": key.UserID, "name": key.Name, "key": plain})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringVar(&userID, "user-id", "", "owner of the key (default: the acting user)")
	return cmd
}

func userKeysCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				keys, err := a.Engine.ListAPIKeys(ctx, actor, userID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for _, k := range keys {
					rows = append(rows, table.Row{k.ID, k.UserID, k.Name, k.CreatedAt})
				}
				return printJSONOrTable(keys, table.Row{"ID", "User", "Name", "Created"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owner of the keys (default: the acting user)")
	return cmd
}

func userRevokeCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.RevokeAPIKey(ctx, actor, userID, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owner of the key (default: the acting user)")
	return cmd
}

func userTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				cfg := authConfig(a.Config)
				cfg.TokenTTL = ttl
				token, err := server.SignToken(cfg, actor.ID, time.Now())
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func printUsers(v any, users []domain.User) error {
	rows := make([]table.Row, 0, len(users))
	for _, u := range users {
		rows = append(rows, table.Row{u.ID, u.Username, u.Role, u.HasExperience, u.HasOtherPets, u.ReadyForPet})
	}
	return printJSONOrTable(v, table.Row{"ID", "Username", "Role", "Experience", "Other pets", "Ready for"}, rows)
}

func animalCmd() *cobra.Command {
	an := &cobra.Command{Use: "animal", Short: "Manage the animal directory"}
	an.AddCommand(animalAddCmd())
	an.AddCommand(animalListCmd())
	an.AddCommand(animalShowCmd())
	an.AddCommand(animalUpdateCmd())
	an.AddCommand(animalDeleteCmd())
	return an
}

func animalFlags(cmd *cobra.Command, in *engine.AnimalInput) {
	cmd.Flags().StringVar(&in.Name, "name", "", "name")
	cmd.Flags().StringVar(&in.Species, "species", "", "species")
	cmd.Flags().StringVar(&in.Breed, "breed", "", "breed")
	cmd.Flags().IntVar(&in.AgeYears, "age-years", 0, "age, years")
	cmd.Flags().IntVar(&in.AgeMonths, "age-months", 0, "age, months (0-11)")
	cmd.Flags().StringVar(&in.HealthStatus, "health", "", "health status")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
}

func animalAddCmd() *cobra.Command {
	var in engine.AnimalInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an animal (staff only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				animal, err := a.Engine.CreateAnimal(ctx, actor, in)
				if err != nil {
					return err
				}
				return printAnimals(animal, []domain.Animal{animal})
			})
		},
	}
	animalFlags(cmd, &in)
	return cmd
}

func animalListCmd() *cobra.Command {
	var species, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse animals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				animals, err := a.Engine.ListAnimals(ctx, species, status)
				if err != nil {
					return err
				}
				return printAnimals(animals, animals)
			})
		},
	}
	cmd.Flags().StringVar(&species, "species", "", "species filter")
	cmd.Flags().StringVar(&status, "status", "", "in_shelter or adopted")
	return cmd
}

func animalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an animal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				animal, err := a.Engine.GetAnimal(ctx, args[0])
				if err != nil {
					return err
				}
				return printAnimals(animal, []domain.Animal{animal})
			})
		},
	}
}

func animalUpdateCmd() *cobra.Command {
	var in engine.AnimalInput
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace an animal profile (staff only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				animal, err := a.Engine.UpdateAnimal(ctx, actor, args[0], in)
				if err != nil {
					return err
				}
				return printAnimals(animal, []domain.Animal{animal})
			})
		},
	}
	animalFlags(cmd, &in)
	return cmd
}

func animalDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an animal (staff only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.DeleteAnimal(ctx, actor, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func printAnimals(v any, animals []domain.Animal) error {
	rows := make([]table.Row, 0, len(animals))
	for _, a := range animals {
		rows = append(rows, table.Row{a.ID, a.Name, a.Species, a.Breed, fmt.Sprintf("%dy %dm", a.AgeYears, a.AgeMonths), a.HealthStatus, a.Status})
	}
	return printJSONOrTable(v, table.Row{"ID", "Name", "Species", "Breed", "Age", "Health", "Status"}, rows)
}

func adoptionCmd() *cobra.Command {
	ad := &cobra.Command{
		Use:   "adoption",
		Short: "Adoption requests",
		Long:  "Requests move pending -> approved or rejected; approved requests become returned when the animal comes back.",
	}
	ad.AddCommand(adoptionCreateCmd())
	ad.AddCommand(adoptionListCmd())
	ad.AddCommand(adoptionShowCmd())
	ad.AddCommand(adoptionApproveCmd())
	ad.AddCommand(adoptionRejectCmd())
	ad.AddCommand(adoptionStatusCmd())
	ad.AddCommand(adoptionDeleteCmd())
	ad.AddCommand(adoptionReturnableCmd())
	return ad
}

func adoptionCreateCmd() *cobra.Command {
	var animalID, forUser string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a request for an animal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				var (
					ad  domain.Adoption
					err error
				)
				if forUser != "" && forUser != actor.ID {
					ad, err = a.Engine.CreateAdoptionFor(ctx, actor, forUser, animalID)
				} else {
					ad, err = a.Engine.CreateAdoption(ctx, actor, animalID)
				}
				if err != nil {
					return err
				}
				return printAdoptions(ad, []domain.Adoption{ad})
			})
		},
	}
	cmd.Flags().StringVar(&animalID, "animal", "", "animal id")
	cmd.Flags().StringVar(&forUser, "for", "", "file on behalf of this adopter (administrators only)")
	return cmd
}

func adoptionListCmd() *cobra.Command {
	var f engine.AdoptionFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				items, err := a.Engine.ListAdoptions(ctx, actor, f)
				if err != nil {
					return err
				}
				return printAdoptions(items, items)
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AnimalID, "animal", "", "animal filter")
	cmd.Flags().StringVar(&f.UserID, "user", "", "user filter (staff only)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum rows")
	return cmd
}

func adoptionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				ad, err := a.Engine.GetAdoption(ctx, actor, args[0])
				if err != nil {
					return err
				}
				has, err := a.Engine.HasReturn(ctx, actor, ad.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"adoption": ad, "has_return": has})
				}
				printTable(
					table.Row{"ID", "User", "Animal", "Status", "Submitted", "Reason", "Returned"},
					[]table.Row{{ad.ID, ad.UserID, ad.AnimalID, ad.Status, ad.SubmittedAt, ad.RejectionReason, has}},
				)
				return nil
			})
		},
	}
}

func adoptionApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a request; other pending requests for the animal are rejected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				ad, err := a.Engine.Approve(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printAdoptions(ad, []domain.Adoption{ad})
			})
		},
	}
}

func adoptionRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a request with a reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				ad, err := a.Engine.Reject(ctx, actor, args[0], reason)
				if err != nil {
					return err
				}
				return printAdoptions(ad, []domain.Adoption{ad})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

func adoptionStatusCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "status <id> <approved|rejected>",
		Short: "Set a request status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				ad, err := a.Engine.UpdateStatus(ctx, actor, args[0], args[1], reason)
				if err != nil {
					return err
				}
				return printAdoptions(ad, []domain.Adoption{ad})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

func adoptionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.DeleteAdoption(ctx, actor, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func adoptionReturnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "returnable",
		Short: "List your approved requests that can be returned",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				items, err := a.Engine.ReturnableAdoptions(ctx, actor)
				if err != nil {
					return err
				}
				return printAdoptions(items, items)
			})
		},
	}
}

func printAdoptions(v any, items []domain.Adoption) error {
	rows := make([]table.Row, 0, len(items))
	for _, ad := range items {
		rows = append(rows, table.Row{ad.ID, ad.UserID, ad.AnimalID, ad.Status, ad.SubmittedAt, ad.RejectionReason})
	}
	return printJSONOrTable(v, table.Row{"ID", "User", "Animal", "Status", "Submitted", "Reason"}, rows)
}

func returnCmd() *cobra.Command {
	rt := &cobra.Command{Use: "return", Short: "Animal returns"}
	rt.AddCommand(returnCreateCmd())
	rt.AddCommand(returnProcessCmd())
	rt.AddCommand(returnListCmd())
	rt.AddCommand(returnShowCmd())
	rt.AddCommand(returnDeleteCmd())
	return rt
}

func returnCreateCmd() *cobra.Command {
	var adoptionID, reason string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Return an animal you adopted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				r, err := a.Engine.CreateReturn(ctx, actor, adoptionID, reason)
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Println("Возврат успешно оформлен. Для всех деталей свяжитесь с нами по номеру " + a.Config.Shelter.ContactPhone)
				}
				return printReturns(r, []domain.Return{r})
			})
		},
	}
	cmd.Flags().StringVar(&adoptionID, "adoption", "", "adoption id")
	cmd.Flags().StringVar(&reason, "reason", "", "return reason")
	return cmd
}

func returnProcessCmd() *cobra.Command {
	var adoptionID, reason string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Record a return on behalf of an adopter (administrators only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				r, err := a.Engine.ProcessReturn(ctx, actor, adoptionID, reason)
				if err != nil {
					return err
				}
				return printReturns(r, []domain.Return{r})
			})
		},
	}
	cmd.Flags().StringVar(&adoptionID, "adoption", "", "adoption id")
	cmd.Flags().StringVar(&reason, "reason", "", "return reason")
	return cmd
}

func returnListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List returns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				items, err := a.Engine.ListReturns(ctx, actor)
				if err != nil {
					return err
				}
				return printReturns(items, items)
			})
		},
	}
}

func returnShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a return",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				r, err := a.Engine.GetReturn(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printReturns(r, []domain.Return{r})
			})
		},
	}
}

func returnDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a return record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.DeleteReturn(ctx, actor, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func printReturns(v any, items []domain.Return) error {
	rows := make([]table.Row, 0, len(items))
	for _, r := range items {
		rows = append(rows, table.Row{r.ID, r.AdoptionID, r.Reason, r.ReturnedAt, optionalString(r.ProcessedBy)})
	}
	return printJSONOrTable(v, table.Row{"ID", "Adoption", "Reason", "Returned", "Processed by"}, rows)
}

func eventFilters(n int, evtType, entityKind, entityID string) repo.EventFilters {
	return repo.EventFilters{Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n}
}
