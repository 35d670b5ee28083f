package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は購読者管理APIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandDaily はフィード収集ジョブを1回実行することを示す。
	CommandDaily Command = "daily"
	// CommandWeekly はダイジェスト編纂・配信ジョブを1回実行することを示す。
	CommandWeekly Command = "weekly"
	// CommandSendTest は最新ダイジェストを指定アドレスにテスト配信することを示す。
	CommandSendTest Command = "send-test"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "daily":
		return CommandDaily
	case "weekly":
		return CommandWeekly
	case "send-test":
		return CommandSendTest
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
