package testutil

// FakeInitDB imitates initdb: it creates the data directory with a
// PG_VERSION marker, honouring the -D flag.
const FakeInitDB = `#!/bin/sh
dir=""
while [ $# -gt 0 ]; do
  case "$1" in
    -D) dir="$2"; shift 2 ;;
    *) shift ;;
  esac
done
[ -n "$dir" ] || { echo "initdb: no data directory specified" >&2; exit 1; }
mkdir -p "$dir" || exit 1
echo "17" > "$dir/PG_VERSION"
echo "initdb: success"
`

// FakePgCtl imitates pg_ctl for start and stop. A file named fake-sleep in
// the data directory delays every action by its content in seconds, and a
// file named fake-fail makes every action exit with status 3.
const FakePgCtl = `#!/bin/sh
action=""
dir=""
while [ $# -gt 0 ]; do
  case "$1" in
    start|stop) action="$1"; shift ;;
    -D) dir="$2"; shift 2 ;;
    *) shift ;;
  esac
done
if [ -f "$dir/fake-sleep" ]; then sleep "$(cat "$dir/fake-sleep")"; fi
if [ -f "$dir/fake-fail" ]; then echo "pg_ctl: $action failed" >&2; exit 3; fi
echo "server $action done"
`

// ControlTools returns tar entries that install the fake tools under bin/.
func ControlTools() []Entry {
	return []Entry{
		{Name: "bin/", Dir: true},
		{Name: "bin/initdb", Body: FakeInitDB, Mode: 0o755},
		{Name: "bin/pg_ctl", Body: FakePgCtl, Mode: 0o755},
		{Name: "share/", Dir: true},
		{Name: "share/extension/", Dir: true},
		{Name: "lib/", Dir: true},
	}
}
