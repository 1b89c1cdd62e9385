package attrs

import "go.opentelemetry.io/otel/attribute"

// Latitude custom attributes.
const (
	LatitudeType               = attribute.Key("latitude.type")
	LatitudeDocumentLogUUID    = attribute.Key("latitude.document_log_uuid")
	LatitudeDocumentUUID       = attribute.Key("latitude.document_uuid")
	LatitudeCommitUUID         = attribute.Key("latitude.commit_uuid")
	LatitudeProjectID          = attribute.Key("latitude.project_id")
	LatitudeExperimentUUID     = attribute.Key("latitude.experiment_uuid")
	LatitudeExternalID         = attribute.Key("latitude.external_id")
	LatitudeSource             = attribute.Key("latitude.source")
	LatitudePromptPath         = attribute.Key("latitude.prompt_path")
	GenAIRequestConfiguration  = attribute.Key("gen_ai.request.configuration")
	GenAIRequestTemplate       = attribute.Key("gen_ai.request.template")
	GenAIRequestParameters     = attribute.Key("gen_ai.request.parameters")
	GenAIRequestMessages       = attribute.Key("gen_ai.request.messages")
	GenAIResponseMessages      = attribute.Key("gen_ai.response.messages")
	GenAIUsagePromptTokens     = attribute.Key("gen_ai.usage.prompt_tokens")
	GenAIUsageCachedTokens     = attribute.Key("gen_ai.usage.cached_tokens")
	GenAIUsageReasoningTokens  = attribute.Key("gen_ai.usage.reasoning_tokens")
	GenAIUsageCompletionTokens = attribute.Key("gen_ai.usage.completion_tokens")
	GenAIToolResultValue       = attribute.Key("gen_ai.tool.result.value")
	GenAIToolResultIsError     = attribute.Key("gen_ai.tool.result.is_error")
)

// OpenTelemetry GenAI semantic conventions.
const (
	GenAISystem                  = attribute.Key("gen_ai.system")
	GenAIProviderName            = attribute.Key("gen_ai.provider.name")
	GenAIOperationName           = attribute.Key("gen_ai.operation.name")
	GenAIRequestModel            = attribute.Key("gen_ai.request.model")
	GenAIResponseModel           = attribute.Key("gen_ai.response.model")
	GenAIRequestTemperature      = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens        = attribute.Key("gen_ai.request.max_tokens")
	GenAIRequestTopP             = attribute.Key("gen_ai.request.top_p")
	GenAIRequestTopK             = attribute.Key("gen_ai.request.top_k")
	GenAIRequestFrequencyPenalty = attribute.Key("gen_ai.request.frequency_penalty")
	GenAIRequestPresencePenalty  = attribute.Key("gen_ai.request.presence_penalty")
	GenAIRequestStopSequences    = attribute.Key("gen_ai.request.stop_sequences")
	GenAIRequestSeed             = attribute.Key("gen_ai.request.seed")
	GenAIUsageInputTokens        = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens       = attribute.Key("gen_ai.usage.output_tokens")
	GenAIResponseFinishReasons   = attribute.Key("gen_ai.response.finish_reasons")
	GenAIPrompt                  = attribute.Key("gen_ai.prompt")
	GenAICompletion              = attribute.Key("gen_ai.completion")
	GenAIToolName                = attribute.Key("gen_ai.tool.name")
	GenAIToolCallID              = attribute.Key("gen_ai.tool.call.id")
	GenAIToolCallArguments       = attribute.Key("gen_ai.tool.call.arguments")
	GenAIToolDescription         = attribute.Key("gen_ai.tool.description")
)

// OpenLLMetry (traceloop) attributes.
const (
	TraceloopSpanKind               = attribute.Key("traceloop.span.kind")
	TraceloopEntityName             = attribute.Key("traceloop.entity.name")
	TraceloopEntityInput            = attribute.Key("traceloop.entity.input")
	TraceloopEntityOutput           = attribute.Key("traceloop.entity.output")
	OpenLLMetryCacheReadInputTokens = attribute.Key("gen_ai.usage.cache_read_input_tokens")
	OpenLLMetryLLMRequestType       = attribute.Key("llm.request.type")
)

// OpenInference attributes.
const (
	OpenInferenceSpanKind             = attribute.Key("openinference.span.kind")
	OpenInferenceLLMProvider          = attribute.Key("llm.provider")
	OpenInferenceLLMSystem            = attribute.Key("llm.system")
	OpenInferenceLLMModelName         = attribute.Key("llm.model_name")
	OpenInferenceInvocationParameters = attribute.Key("llm.invocation_parameters")
	OpenInferenceInputMessages        = attribute.Key("llm.input_messages")
	OpenInferenceOutputMessages       = attribute.Key("llm.output_messages")
	OpenInferencePromptTokens         = attribute.Key("llm.token_count.prompt")
	OpenInferenceCompletionTokens     = attribute.Key("llm.token_count.completion")
	OpenInferenceCacheInputTokens     = attribute.Key("llm.token_count.prompt_details.cache_input")
	OpenInferenceCacheReadTokens      = attribute.Key("llm.token_count.prompt_details.cache_read")
	OpenInferenceCacheWriteTokens     = attribute.Key("llm.token_count.prompt_details.cache_write")
	OpenInferenceReasoningTokens      = attribute.Key("llm.token_count.completion_details.reasoning")
	OpenInferenceToolName             = attribute.Key("tool.name")
	OpenInferenceToolParameters       = attribute.Key("tool.parameters")
	OpenInferenceToolCallID           = attribute.Key("tool_call.id")
	OpenInferenceToolCallFunctionName = attribute.Key("tool_call.function.name")
	OpenInferenceToolCallFunctionArgs = attribute.Key("tool_call.function.arguments")
	OpenInferenceInputValue           = attribute.Key("input.value")
	OpenInferenceOutputValue          = attribute.Key("output.value")
	OpenInferenceEmbeddingModelName   = attribute.Key("embedding.model_name")
	OpenInferenceEmbeddingEmbeddings  = attribute.Key("embedding.embeddings")
	OpenInferenceRetrievalDocuments   = attribute.Key("retrieval.documents")
	OpenInferenceRerankerModelName    = attribute.Key("reranker.model_name")
	OpenInferenceRerankerQuery        = attribute.Key("reranker.query")
	OpenInferenceRerankerTopK         = attribute.Key("reranker.top_k")
	OpenInferenceRerankerInputDocs    = attribute.Key("reranker.input_documents")
	OpenInferenceRerankerOutputDocs   = attribute.Key("reranker.output_documents")
)

// Vercel AI SDK attributes.
const (
	VercelOperationID           = attribute.Key("ai.operationId")
	VercelModelProvider         = attribute.Key("ai.model.provider")
	VercelModelID               = attribute.Key("ai.model.id")
	VercelResponseModel         = attribute.Key("ai.response.model")
	VercelSettings              = attribute.Key("ai.settings")
	VercelPromptMessages        = attribute.Key("ai.prompt.messages")
	VercelResponseText          = attribute.Key("ai.response.text")
	VercelResponseReasoning     = attribute.Key("ai.response.reasoning")
	VercelResponseToolCalls     = attribute.Key("ai.response.toolCalls")
	VercelResponseFinishReason  = attribute.Key("ai.response.finishReason")
	VercelUsagePromptTokens     = attribute.Key("ai.usage.promptTokens")
	VercelUsageInputTokens      = attribute.Key("ai.usage.inputTokens")
	VercelUsageCompletionTokens = attribute.Key("ai.usage.completionTokens")
	VercelUsageOutputTokens     = attribute.Key("ai.usage.outputTokens")
	VercelUsageCachedTokens     = attribute.Key("ai.usage.cachedInputTokens")
	VercelUsageReasoningTokens  = attribute.Key("ai.usage.reasoningTokens")
	VercelToolCallName          = attribute.Key("ai.toolCall.name")
	VercelToolCallID            = attribute.Key("ai.toolCall.id")
	VercelToolCallArgs          = attribute.Key("ai.toolCall.args")
	VercelToolCallResult        = attribute.Key("ai.toolCall.result")
	VercelValues                = attribute.Key("ai.values")
	VercelEmbeddingsCount       = attribute.Key("ai.embeddings")
	VercelUsageTokens           = attribute.Key("ai.usage.tokens")
)

// HTTP semantic conventions, current and legacy.
const (
	HTTPRequestMethod      = attribute.Key("http.request.method")
	HTTPMethod             = attribute.Key("http.method")
	URLFull                = attribute.Key("url.full")
	HTTPURL                = attribute.Key("http.url")
	HTTPRequestURL         = attribute.Key("http.request.url")
	HTTPRequestHeader      = attribute.Key("http.request.header")
	HTTPRequestBody        = attribute.Key("http.request.body")
	HTTPResponseStatusCode = attribute.Key("http.response.status_code")
	HTTPStatusCode         = attribute.Key("http.status_code")
	HTTPResponseHeader     = attribute.Key("http.response.header")
	HTTPResponseBody       = attribute.Key("http.response.body")
)
