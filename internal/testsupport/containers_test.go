package testsupport

import (
	"testing"

	"github.com/localnerve/contentdb/data"
	"github.com/stretchr/testify/assert"
)

func TestSplitSQL(t *testing.T) {
	script := `-- leading comment
CREATE USER 'a'@'%' IDENTIFIED BY 'pa--ss'; -- trailing
GRANT ALL ON x.* TO 'a'@'%'
  WITH GRANT OPTION;

`
	stmts := SplitSQL(script)
	assert.Equal(t, []string{
		"CREATE USER 'a'@'%' IDENTIFIED BY 'pa--ss'",
		"GRANT ALL ON x.* TO 'a'@'%'   WITH GRANT OPTION",
	}, stmts)
}

func TestSplitSQLBootstrapScript(t *testing.T) {
	stmts := SplitSQL(data.InitdbMariaDB)
	assert.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], "CREATE DATABASE IF NOT EXISTS contentdb")
	assert.Equal(t, "FLUSH PRIVILEGES", stmts[3])
}
