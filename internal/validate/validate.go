package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/seantiz/botrunner/internal/model"
)

// botIDPattern is the accepted shape of a bot identifier.
var botIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// modeTypos maps common misspellings to the deployment mode they meant.
var modeTypos = map[string]model.DeploymentMode{
	"simpel": model.ModeSimple,
	"simle":  model.ModeSimple,
	"sinple": model.ModeSimple,
	"sipmle": model.ModeSimple,
	"costom": model.ModeCustom,
	"cusotm": model.ModeCustom,
	"custm":  model.ModeCustom,
	"img":    model.ModeImage,
	"imge":   model.ModeImage,
	"imagee": model.ModeImage,
}

var registryAuthExample = map[string]any{
	"registry_auth": map[string]any{"username": "myuser", "password": "mytoken"},
}

// Request validates a bot runner request. It returns nil when the request is
// well-formed and a *Error describing the first violation otherwise. Unknown
// keys are ignored and values of unexpected types are reported, never panicked on.
func Request(req map[string]any) error {
	if err := request(req); err != nil {
		return err
	}
	return nil
}

func request(req map[string]any) *Error {
	rawAction := req["action"]
	if !truthy(rawAction) {
		return newError(CodeMissingRequiredField, "Missing required field 'action'",
			map[string]any{"field": "action", "required": true}).
			withHint("Specify an action: 'start', 'stop', 'logs', 'list' or 'status'").
			withExample(map[string]any{
				"valid_values": actionNames(),
				"request": map[string]any{
					"action":          "start",
					"bot_id":          "my-bot",
					"deployment_mode": "simple",
					"code":            "...",
					"env_vars":        map[string]any{"BOT_TOKEN": "..."},
				},
			})
	}

	actionStr, isString := rawAction.(string)
	action, ok := model.ParseAction(actionStr)
	if !isString || !ok {
		e := newError(CodeInvalidAction, fmt.Sprintf("Unknown action: '%v'", rawAction),
			map[string]any{"field": "action", "value": rawAction}).
			withExample(map[string]any{"valid_values": actionNames()})
		if guess, found := guessAction(actionStr); isString && found {
			e.withHint(fmt.Sprintf("Did you mean '%s'?", guess))
		}
		return e.withType(rawAction)
	}

	if !action.NeedsBotID() {
		return nil
	}

	if err := checkBotID(req["bot_id"]); err != nil {
		return err
	}

	if action != model.ActionStart {
		return nil
	}
	return checkStart(req)
}

func checkBotID(raw any) *Error {
	if !truthy(raw) {
		return newError(CodeMissingRequiredField, "Missing required field 'bot_id'",
			map[string]any{"field": "bot_id", "required": true}).
			withHint("Provide a unique bot identifier").
			withExample(map[string]any{"valid_examples": []any{"my-bot", "echo_bot_v2", "parser-123"}})
	}

	botID, isString := raw.(string)
	if isString && botIDPattern.MatchString(botID) {
		return nil
	}

	reason := "Invalid characters or length"
	if !isString {
		reason = "Must be a string"
	}
	return newError(CodeInvalidBotID, "Invalid bot_id format",
		map[string]any{"bot_id": raw, "reason": reason}).
		withType(raw).
		withHint("Use only letters, digits, hyphens and underscores (max 64 characters)").
		withExample(map[string]any{
			"valid_format":     botIDPattern.String(),
			"valid_examples":   []any{"my-bot", "echo_bot_v2"},
			"invalid_examples": []any{"my bot", "bot!@#", strings.Repeat("x", 65)},
		})
}

func checkStart(req map[string]any) *Error {
	rawMode := req["deployment_mode"]
	if !truthy(rawMode) {
		return newError(CodeMissingRequiredField, "Missing required field 'deployment_mode'",
			map[string]any{"field": "deployment_mode", "required": true}).
			withHint("Choose a deployment mode").
			withExample(map[string]any{
				"valid_values": modeNames(),
				"descriptions": map[string]any{
					"simple": "Source text plus requirements (simplest)",
					"custom": "Directory, archive or Git repository with a Dockerfile",
					"image":  "Pre-built Docker image",
				},
			})
	}

	modeStr, isString := rawMode.(string)
	mode, ok := model.ParseDeploymentMode(modeStr)
	if !isString || !ok {
		e := newError(CodeInvalidDeploymentMode, fmt.Sprintf("Unknown deployment mode: '%v'", rawMode),
			map[string]any{"field": "deployment_mode", "value": rawMode}).
			withExample(map[string]any{"valid_values": modeNames()})
		if guess, found := modeTypos[strings.ToLower(modeStr)]; isString && found {
			e.withHint(fmt.Sprintf("Did you mean '%s'?", guess))
		}
		return e.withType(rawMode)
	}

	var err *Error
	switch mode {
	case model.ModeSimple:
		err = checkSimple(req)
	case model.ModeCustom:
		err = checkCustom(req)
	case model.ModeImage:
		err = checkImage(req)
	}
	if err != nil {
		return err
	}

	if envVars, present := req["env_vars"]; present && envVars != nil {
		if _, ok := asMap(envVars); !ok {
			return newError(CodeInvalidEnvVars, "Field 'env_vars' must be an object",
				map[string]any{"field": "env_vars", "type": typeName(envVars)}).
				withExample(map[string]any{"env_vars": map[string]any{"BOT_TOKEN": "123:ABC...", "DEBUG": "true"}})
		}
	}
	return nil
}

func checkSimple(req map[string]any) *Error {
	hasCode := truthy(req["code"])
	hasFiles := truthy(req["files"])

	if !hasCode && !hasFiles {
		return newError(CodeMissingCode, "Mode 'simple' requires the bot source code",
			map[string]any{"deployment_mode": "simple", "missing": []any{"code", "files"}}).
			withHint("Use 'code' for a single file or 'files' for several").
			withExample(map[string]any{
				"single_file": map[string]any{
					"deployment_mode": "simple",
					"code":            "import os\nfrom aiogram import Bot...",
					"entrypoint":      "bot.py",
					"requirements":    []any{"aiogram>=3.0"},
				},
				"multiple_files": map[string]any{
					"deployment_mode": "simple",
					"files": map[string]any{
						"bot.py":      "import os\nfrom handlers import...",
						"handlers.py": "from aiogram import...",
					},
					"entrypoint": "bot.py",
				},
			})
	}

	if hasCode && hasFiles {
		return newError(CodeConflictingFields, "Provide either 'code' or 'files', not both",
			map[string]any{"conflicting": []any{"code", "files"}}).
			withHint("'code' is for a single file, 'files' for several")
	}

	if hasCode {
		if _, ok := req["code"].(string); !ok {
			return newError(CodeInvalidFieldType, "Field 'code' must be a string",
				map[string]any{"field": "code", "type": typeName(req["code"])})
		}
	}

	if hasFiles {
		files, ok := asMap(req["files"])
		if !ok {
			return newError(CodeInvalidFilesFormat, "Field 'files' must be an object {filename: content}",
				map[string]any{"field": "files", "type": typeName(req["files"])}).
				withExample(map[string]any{"files": map[string]any{"bot.py": "code...", "utils.py": "code..."}})
		}
		if len(files) == 0 {
			return newError(CodeEmptyFiles, "Field 'files' must not be empty",
				map[string]any{"field": "files"}).
				withExample(map[string]any{"files": map[string]any{"bot.py": "import aiogram..."}})
		}
		for _, name := range sortedKeys(files) {
			if _, ok := files[name].(string); !ok {
				return newError(CodeInvalidFileContent, fmt.Sprintf("Content of file '%s' must be a string", name),
					map[string]any{"filename": name, "type": typeName(files[name])})
			}
		}
	}

	if reqs, present := req["requirements"]; present && reqs != nil {
		list, ok := asList(reqs)
		if !ok {
			return newError(CodeInvalidRequirements, "Field 'requirements' must be a list",
				map[string]any{"field": "requirements", "type": typeName(reqs)}).
				withExample(map[string]any{"requirements": []any{"aiogram>=3.0", "aiohttp"}})
		}
		for i, item := range list {
			if _, ok := item.(string); !ok {
				return newError(CodeInvalidRequirements, "Every entry in 'requirements' must be a string",
					map[string]any{"field": "requirements", "index": i, "type": typeName(item)}).
					withExample(map[string]any{"requirements": []any{"aiogram>=3.0", "aiohttp"}})
			}
		}
	}
	return nil
}

func checkCustom(req map[string]any) *Error {
	var provided []any
	for _, name := range []string{"archive", "archive_url", "git_repo"} {
		if truthy(req[name]) {
			provided = append(provided, name)
		}
	}

	switch {
	case len(provided) == 0:
		return newError(CodeMissingSource, "Mode 'custom' requires a code source",
			map[string]any{"deployment_mode": "custom", "missing": []any{"archive", "archive_url", "git_repo"}}).
			withHint("Provide exactly one way to fetch the code").
			withExample(map[string]any{
				"options": []any{
					map[string]any{
						"description": "Git repository",
						"request":     map[string]any{"deployment_mode": "custom", "git_repo": "https://github.com/user/bot.git"},
					},
					map[string]any{
						"description": "Archive URL",
						"request":     map[string]any{"deployment_mode": "custom", "archive_url": "https://example.com/bot.tar.gz"},
					},
					map[string]any{
						"description": "Base64 archive",
						"request":     map[string]any{"deployment_mode": "custom", "archive": "H4sIAAAAAAAAA..."},
					},
				},
			})
	case len(provided) > 1:
		return newError(CodeConflictingSources, "Provide only one code source",
			map[string]any{"provided": provided}).
			withHint("Choose one of: archive, archive_url or git_repo")
	}

	if raw := req["git_repo"]; truthy(raw) {
		repo, _ := raw.(string)
		if !hasAnyPrefix(repo, "https://", "git@", "http://") {
			return newError(CodeInvalidGitURL, "Invalid Git URL",
				map[string]any{"git_repo": raw}).
				withType(raw).
				withHint("The URL must start with 'https://', 'http://' or 'git@'").
				withExample(map[string]any{"valid": []any{
					"https://github.com/user/repo.git",
					"git@github.com:user/repo.git",
				}})
		}
	}

	if raw := req["archive_url"]; truthy(raw) {
		url, _ := raw.(string)
		if !hasAnyPrefix(url, "https://", "http://") {
			return newError(CodeInvalidArchiveURL, "Invalid archive URL",
				map[string]any{"archive_url": raw}).
				withType(raw).
				withHint("The URL must start with 'https://' or 'http://'")
		}
	}
	return nil
}

func checkImage(req map[string]any) *Error {
	raw := req["docker_image"]
	if !truthy(raw) {
		return newError(CodeMissingDockerImage, "Mode 'image' requires a Docker image name",
			map[string]any{"deployment_mode": "image", "missing": []any{"docker_image"}}).
			withExample(map[string]any{
				"request": map[string]any{
					"deployment_mode": "image",
					"docker_image":    "ghcr.io/user/mybot:v1.0",
					"registry_auth":   map[string]any{"username": "...", "password": "..."},
					"env_vars":        map[string]any{"BOT_TOKEN": "..."},
				},
			})
	}

	image, isString := raw.(string)
	if !isString || strings.ContainsFunc(image, unicode.IsSpace) {
		message := "Docker image name contains whitespace"
		if !isString {
			message = "Docker image name must be a string"
		}
		return newError(CodeInvalidImageName, message,
			map[string]any{"docker_image": raw}).
			withType(raw).
			withExample(map[string]any{"valid": []any{
				"python:3.11-slim",
				"ghcr.io/user/bot:v1.0",
				"registry.example.com/mybot:latest",
			}})
	}

	rawAuth := req["registry_auth"]
	if !truthy(rawAuth) {
		return nil
	}
	auth, ok := asMap(rawAuth)
	if !ok {
		return newError(CodeInvalidRegistryAuth, "Field 'registry_auth' must be an object",
			map[string]any{"type": typeName(rawAuth)}).
			withExample(registryAuthExample)
	}
	_, hasUser := auth["username"]
	_, hasPass := auth["password"]
	if !hasUser || !hasPass {
		provided := make([]any, 0, len(auth))
		for _, k := range sortedKeys(auth) {
			provided = append(provided, k)
		}
		return newError(CodeIncompleteRegistryAuth, "Field 'registry_auth' requires both 'username' and 'password'",
			map[string]any{"provided": provided}).
			withExample(registryAuthExample)
	}
	return nil
}

// guessAction returns the first action sharing the first two characters of s.
func guessAction(s string) (model.Action, bool) {
	prefix := strings.ToLower(s)
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	for _, a := range model.Actions {
		if strings.HasPrefix(string(a), prefix) {
			return a, true
		}
	}
	return "", false
}

func actionNames() []any {
	names := make([]any, len(model.Actions))
	for i, a := range model.Actions {
		names[i] = string(a)
	}
	return names
}

func modeNames() []any {
	names := make([]any, len(model.DeploymentModes))
	for i, m := range model.DeploymentModes {
		names[i] = string(m)
	}
	return names
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// truthy reports whether v counts as provided: non-nil, non-zero and, for
// strings and collections, non-empty.
func truthy(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Invalid:
		return false
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// typeName names the JSON type of v.
func typeName(v any) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Invalid:
		return "null"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
