package sourceref

import "strings"

// RewriteOnRename updates a stored reference after a job rename.
// References equal to the old name, or prefixed by it plus "/", are
// rewritten; any axis or module suffix — including suffixes holding
// $VAR placeholders — is preserved untouched. References that only
// reach the job through a parameterized job name never match the prefix
// and stay as they are, since they are unresolvable at rename time.
func RewriteOnRename(raw, oldName, newName string) (string, bool) {
	if raw == oldName {
		return newName, true
	}
	if strings.HasPrefix(raw, oldName+"/") {
		return newName + raw[len(oldName):], true
	}
	return raw, false
}
