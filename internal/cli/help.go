package cli

type commandHelp struct {
	name   string
	syntax string
	desc   string
}

var commands = []commandHelp{
	{"register", "register <email>", "Create an account; prompts for a password."},
	{"login", "login <email>", "Log in; prompts for a password."},
	{"sso", "sso <token>", "Log in with a GeekBase single sign-on token."},
	{"logout", "logout", "Revoke the current session."},
	{"whoami", "whoami", "Show the logged-in account."},
	{"ls", "ls [--tag <tag> | --prefix <prefix>]", "List notes, newest first."},
	{"cat", "cat <id>", "Show one note."},
	{"new", `new <title> <content> [type] [tag,tag,...]`, `Create a note. Quote arguments with spaces: new "Road trip" "pack snacks" text travel`},
	{"edit", "edit <id> <content>", "Replace a note's content. Saved after a short pause or before the next command."},
	{"rm", "rm <id>", "Delete a note."},
	{"tags", "tags", "List every tag in use."},
	{"tree", "tree", "Show the tag hierarchy with note counts."},
	{"search", "search <query>", "Full-text search over your notes."},
	{"folders", "folders", "List folders."},
	{"mkdir", "mkdir <name>", "Create a folder."},
	{"mvdir", "mvdir <id> <new name>", "Rename a folder and retag its notes."},
	{"rmdir", "rmdir <id> [--notes]", "Delete a folder. With --notes its notes are deleted too, otherwise they are untagged."},
	{"export", "export [file]", "Download all notes as a .tar.gz archive."},
	{"backup", "backup", "Upload an archive of all notes to object storage."},
	{"help", "help [command]", "Show help."},
	{"exit", "exit", "Leave."},
}

func (r *REPL) help(args []string) error {
	if len(args) == 0 {
		r.println("Commands:")
		for _, c := range commands {
			r.printf("  %-40s %s\n", c.syntax, c.desc)
		}
		return nil
	}
	for _, c := range commands {
		if c.name == args[0] {
			r.printf("%s\n  %s\n", c.syntax, c.desc)
			return nil
		}
	}
	return usage("help [command]")
}
