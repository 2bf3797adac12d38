package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandWorker はcronスケジュールでポーリングを続けるワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandOnce はサイクルを1回だけ実行して終了することを示す。
	// Kubernetes CronJobなど外部スケジューラから起動する場合に使う。
	CommandOnce Command = "once"
	// CommandMigrate はカーソルストアのスキーマを作成することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandWorkerを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandWorker
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "once":
		return CommandOnce
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandWorker
	}
}
