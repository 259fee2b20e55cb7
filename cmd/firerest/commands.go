package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/erauner12/firerest/pkg/database"
	"github.com/erauner12/firerest/pkg/firestore"
	"github.com/erauner12/firerest/pkg/messaging"
	"github.com/erauner12/firerest/pkg/storage"
)

func (a *app) signInCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signin",
		Short: "Sign in with --email/--password and print the identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.email == "" {
				return fmt.Errorf("--email is required")
			}
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(c.Auth().CurrentUser())
		},
	}
}

func (a *app) signUpCmd() *cobra.Command {
	var anonymous bool
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account (--email/--password or --anonymous) and print the identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			email := a.email
			a.email = "" // connect must not sign in first
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			if anonymous {
				id, err := c.Auth().SignInAnonymously(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(id)
			}
			if email == "" {
				return fmt.Errorf("--email is required unless --anonymous is set")
			}
			id, err := c.Auth().SignUp(cmd.Context(), email, a.password)
			if err != nil {
				return err
			}
			return a.print(id)
		},
	}
	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "create an anonymous account")
	return cmd
}

func (a *app) tokenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			token, err := c.Tokens().GetValidToken(cmd.Context(), force)
			if err != nil {
				return err
			}
			snap := c.Session().Snapshot()
			return a.print(map[string]any{
				"token":     token,
				"uid":       snap.Identity.UID,
				"expiresAt": snap.ExpiresAt,
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "refresh even if the cached token is still valid")
	return cmd
}

func (a *app) dbCmd() *cobra.Command {
	dbCmd := &cobra.Command{Use: "db", Short: "Real-time data-store operations"}

	var orderByChild string
	var limitFirst, limitLast int
	var shallow bool
	getCmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read the value at path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			q := database.New(c).Ref(args[0]).Query()
			if orderByChild != "" {
				q = q.OrderByChild(orderByChild)
			}
			if limitFirst > 0 {
				q = q.LimitToFirst(limitFirst)
			}
			if limitLast > 0 {
				q = q.LimitToLast(limitLast)
			}
			if shallow {
				q = q.Shallow()
			}
			var out any
			if _, err := q.Get(cmd.Context(), &out); err != nil {
				return err
			}
			return a.print(out)
		},
	}
	getCmd.Flags().StringVar(&orderByChild, "order-by-child", "", "order results by this child path")
	getCmd.Flags().IntVar(&limitFirst, "limit-first", 0, "return only the first N children")
	getCmd.Flags().IntVar(&limitLast, "limit-last", 0, "return only the last N children")
	getCmd.Flags().BoolVar(&shallow, "shallow", false, "return child keys only")

	setCmd := &cobra.Command{
		Use:   "set <path> <json>",
		Short: "Replace the value at path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseJSONArg(args[1])
			if err != nil {
				return err
			}
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			return database.New(c).Ref(args[0]).Set(cmd.Context(), value)
		},
	}

	pushCmd := &cobra.Command{
		Use:   "push <path> <json>",
		Short: "Append a value under a generated key and print the new path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseJSONArg(args[1])
			if err != nil {
				return err
			}
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			ref, err := database.New(c).Ref(args[0]).Push(cmd.Context(), value)
			if err != nil {
				return err
			}
			return a.print(map[string]string{"path": ref.Path(), "key": ref.Key()})
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete the value at path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			return database.New(c).Ref(args[0]).Remove(cmd.Context())
		},
	}

	dbCmd.AddCommand(getCmd, setCmd, pushCmd, rmCmd)
	return dbCmd
}

func (a *app) docCmd() *cobra.Command {
	docCmd := &cobra.Command{Use: "doc", Short: "Document-database operations"}

	getCmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := firestore.New(c).Doc(args[0]).Get(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(map[string]any{
				"id":         doc.ID(),
				"fields":     doc.Fields,
				"updateTime": doc.UpdateTime,
			})
		},
	}

	var merge bool
	setCmd := &cobra.Command{
		Use:   "set <path> <json-object>",
		Short: "Create or overwrite a document (--merge updates only the given fields)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseJSONArg(args[1])
			if err != nil {
				return err
			}
			fields, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("document value must be a JSON object")
			}
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			ref := firestore.New(c).Doc(args[0])
			var doc *firestore.Document
			if merge {
				doc, err = ref.Update(cmd.Context(), fields)
			} else {
				doc, err = ref.Set(cmd.Context(), fields)
			}
			if err != nil {
				return err
			}
			return a.print(map[string]any{"id": doc.ID(), "updateTime": doc.UpdateTime})
		},
	}
	setCmd.Flags().BoolVar(&merge, "merge", false, "update only the given fields of an existing document")

	docCmd.AddCommand(getCmd, setCmd)
	return docCmd
}

func (a *app) storageCmd() *cobra.Command {
	storageCmd := &cobra.Command{Use: "storage", Short: "Object-storage operations"}

	var contentType string
	putCmd := &cobra.Command{
		Use:   "put <object-path> <file>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			ct := contentType
			if ct == "" {
				ct = mime.TypeByExtension(filepath.Ext(args[1]))
			}
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			meta, err := storage.New(c).Ref(args[0]).Upload(cmd.Context(), data, ct)
			if err != nil {
				return err
			}
			return a.print(meta)
		},
	}
	putCmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: from the file extension)")

	var outPath string
	getCmd := &cobra.Command{
		Use:   "get <object-path>",
		Short: "Download an object to --out or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			data, err := storage.New(c).Ref(args[0]).Download(cmd.Context())
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = a.out.Write(data)
				return err
			}
			return os.WriteFile(outPath, data, 0o644)
		},
	}
	getCmd.Flags().StringVarP(&outPath, "out", "o", "", "write to this file instead of stdout")

	urlCmd := &cobra.Command{
		Use:   "url <object-path>",
		Short: "Print the token download URL of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			link, err := storage.New(c).Ref(args[0]).DownloadURL(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, link)
			return err
		},
	}

	storageCmd.AddCommand(putCmd, getCmd, urlCmd)
	return storageCmd
}

func (a *app) sendCmd() *cobra.Command {
	var msg messaging.Message
	var title, body string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a push message to one of --token, --topic or --condition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title != "" || body != "" {
				msg.Notification = &messaging.Notification{Title: title, Body: body}
			}
			c, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			id, err := messaging.New(c).Send(cmd.Context(), msg)
			if err != nil {
				return err
			}
			return a.print(map[string]string{"name": id})
		},
	}
	cmd.Flags().StringVar(&msg.Token, "token", "", "device registration token")
	cmd.Flags().StringVar(&msg.Topic, "topic", "", "topic name")
	cmd.Flags().StringVar(&msg.Condition, "condition", "", "topic condition expression")
	cmd.Flags().StringVar(&title, "title", "", "notification title")
	cmd.Flags().StringVar(&body, "body", "", "notification body")
	cmd.Flags().StringToStringVar(&msg.Data, "data", nil, "data payload as key=value pairs")
	return cmd
}
