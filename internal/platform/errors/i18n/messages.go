package i18n

// Error codes must match internal/platform/errors/codes.go.
const (
	codeUnknown          = "UNKNOWN"
	codeInvalidScope     = "TIMELINE_INVALID_SCOPE"
	codeInvalidRange     = "TIMELINE_INVALID_RANGE"
	codeInvalidFilter    = "TIMELINE_INVALID_FILTER"
	codeInvalidPageToken = "TIMELINE_INVALID_PAGE_TOKEN"
	codeInvalidTieBreak  = "TIMELINE_INVALID_TIE_BREAK"
	codeMalformedEvent   = "EVENT_LOG_MALFORMED"
	codeUnknownKind      = "EVENT_UNKNOWN_KIND"
	codeTimelineOverlap  = "TIMELINE_OVERLAP"
	codeCacheComputation = "PROJECTION_COMPUTATION_FAILED"
	codeNotFound         = "NOT_FOUND"
	codeUnavailable      = "STORE_UNAVAILABLE"
)

var enUSCatalog = NewCatalog("en-US", map[Code]string{
	codeUnknown:          "An unexpected error occurred",
	codeInvalidScope:     "A timeline needs a resident or resource identifier",
	codeInvalidRange:     "The range {{.start}} to {{.end}} is not valid",
	codeInvalidFilter:    "The event filter could not be parsed",
	codeInvalidPageToken: "The page token is not valid for this listing",
	codeInvalidTieBreak:  "Unknown tie-break policy",
	codeMalformedEvent:   "Event {{.event_id}} cannot be applied: {{.reason}}",
	codeUnknownKind:      "The event log contains an event of unknown kind",
	codeTimelineOverlap:  "The resolved timeline has overlapping entries",
	codeCacheComputation: "The timeline could not be computed",
	codeNotFound:         "Not found",
	codeUnavailable:      "The event store is unavailable, try again later",
})

var ptBRCatalog = NewCatalog("pt-BR", map[Code]string{
	codeUnknown:          "Ocorreu um erro inesperado",
	codeInvalidScope:     "Uma linha do tempo precisa de um residente ou recurso",
	codeInvalidRange:     "O intervalo de {{.start}} a {{.end}} não é válido",
	codeInvalidFilter:    "Não foi possível interpretar o filtro de eventos",
	codeInvalidPageToken: "O token de página não é válido para esta listagem",
	codeInvalidTieBreak:  "Política de desempate desconhecida",
	codeMalformedEvent:   "O evento {{.event_id}} não pode ser aplicado: {{.reason}}",
	codeUnknownKind:      "O registro contém um evento de tipo desconhecido",
	codeTimelineOverlap:  "A linha do tempo resolvida tem entradas sobrepostas",
	codeCacheComputation: "Não foi possível calcular a linha do tempo",
	codeNotFound:         "Não encontrado",
	codeUnavailable:      "O armazenamento de eventos está indisponível, tente novamente",
})
