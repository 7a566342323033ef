package i18n

import platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[platformerrors.Code]string{
		// Player failures
		platformerrors.CodeSpawn:        "{{.player}} could not be launched",
		platformerrors.CodeTimeout:      "{{.player}} did not answer in time at time index {{.time_index}}",
		platformerrors.CodeCrashed:      "{{.player}} exited before answering",
		platformerrors.CodeProtocol:     "{{.player}} sent a message that does not follow the protocol",
		platformerrors.CodeIllegalMove:  "{{.player}} made an illegal move at time index {{.time_index}}",
		platformerrors.CodeStreamClosed: "{{.player}} closed its output",

		// Match aborts
		platformerrors.CodeRules:     "The game rules failed",
		platformerrors.CodeCancelled: "The match was cancelled",

		platformerrors.CodeInvalidConfig: "Invalid configuration",
		platformerrors.CodeStorage:       "Results storage failed",
		platformerrors.CodeNotFound:      "The requested match was not found",
		platformerrors.CodeUnknown:       "Unknown error",
	},
}

var ptBRCatalog = &Catalog{
	locale: "pt-BR",
	messages: map[platformerrors.Code]string{
		platformerrors.CodeSpawn:        "{{.player}} não pôde ser iniciado",
		platformerrors.CodeTimeout:      "{{.player}} não respondeu a tempo no índice {{.time_index}}",
		platformerrors.CodeCrashed:      "{{.player}} terminou antes de responder",
		platformerrors.CodeProtocol:     "{{.player}} enviou uma mensagem fora do protocolo",
		platformerrors.CodeIllegalMove:  "{{.player}} fez uma jogada ilegal no índice {{.time_index}}",
		platformerrors.CodeStreamClosed: "{{.player}} fechou sua saída",

		platformerrors.CodeRules:     "As regras do jogo falharam",
		platformerrors.CodeCancelled: "A partida foi cancelada",

		platformerrors.CodeInvalidConfig: "Configuração inválida",
		platformerrors.CodeStorage:       "Falha ao gravar resultados",
		platformerrors.CodeNotFound:      "A partida solicitada não foi encontrada",
		platformerrors.CodeUnknown:       "Erro desconhecido",
	},
}
