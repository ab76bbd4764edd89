// Package mcpserver exposes the expense service as MCP tools and resources.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"expensemcp/internal/categories"
	"expensemcp/internal/core"
	"expensemcp/internal/log"
)

const (
	ServerName    = "ExpenseTracker"
	ServerVersion = "1.0.0"

	CategoriesURI = "expense:///categories"
	jsonMIMEType  = "application/json"
)

// Tool names
const (
	ToolAddExpense        = "add_expense"
	ToolListExpenses      = "list_expenses"
	ToolSummarizeExpenses = "summarize_expenses"
	ToolGetCategories     = "get_categories"
)

// ExpenseService is the subset of services.ExpenseService the tools call.
type ExpenseService interface {
	AddExpense(ctx context.Context, e core.NewExpense) core.Result
	ListExpenses(ctx context.Context, rng core.DateRange) ([]core.Expense, error)
	SummarizeExpenses(ctx context.Context, rng core.DateRange, category string) ([]core.CategorySummary, error)
}

// CategoryReader supplies the categories document.
type CategoryReader interface {
	Read() (string, error)
}

type handlers struct {
	expenses   ExpenseService
	categories CategoryReader
	logger     *log.Logger
}

// New builds an MCP server with every expense tool and the categories resource registered.
func New(expenses ExpenseService, reader CategoryReader, logger *log.Logger) *server.MCPServer {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	h := &handlers{
		expenses:   expenses,
		categories: reader,
		logger:     logger.WithComponent(log.ComponentMCP),
	}

	s := server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(h.logCalls),
	)

	s.AddTool(addExpenseTool(), h.addExpense)
	s.AddTool(listExpensesTool(), h.listExpenses)
	s.AddTool(summarizeExpensesTool(), h.summarizeExpenses)
	s.AddTool(getCategoriesTool(), h.getCategories)
	s.AddResource(categoriesResource(), h.readCategories)

	return s
}

// logCalls records each tool call with its duration.
func (h *handlers) logCalls(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := next(ctx, req)

		level := slog.LevelInfo
		if err != nil || (result != nil && result.IsError) {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "Tool call completed",
			log.FieldTool, req.Params.Name,
			log.FieldDuration, time.Since(start).Milliseconds())
		return result, err
	}
}

func addExpenseTool() mcp.Tool {
	return mcp.NewTool(ToolAddExpense,
		mcp.WithDescription("Add a new expense entry to the database."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Expense date as YYYY-MM-DD")),
		mcp.WithNumber("amount", mcp.Required(), mcp.Description("Amount spent")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Expense category, see the categories resource")),
		mcp.WithString("subcategory", mcp.Description("Optional subcategory")),
		mcp.WithString("note", mcp.Description("Optional free-form note")),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func listExpensesTool() mcp.Tool {
	return mcp.NewTool(ToolListExpenses,
		mcp.WithDescription("List expense entries within an inclusive date range, newest first."),
		mcp.WithString("start_date", mcp.Required(), mcp.Description("First date of the range, YYYY-MM-DD")),
		mcp.WithString("end_date", mcp.Required(), mcp.Description("Last date of the range, YYYY-MM-DD")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func summarizeExpensesTool() mcp.Tool {
	return mcp.NewTool(ToolSummarizeExpenses,
		mcp.WithDescription("Summarize expenses by category within an inclusive date range."),
		mcp.WithString("start_date", mcp.Required(), mcp.Description("First date of the range, YYYY-MM-DD")),
		mcp.WithString("end_date", mcp.Required(), mcp.Description("Last date of the range, YYYY-MM-DD")),
		mcp.WithString("category", mcp.Description("Restrict the summary to one category")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func getCategoriesTool() mcp.Tool {
	return mcp.NewTool(ToolGetCategories,
		mcp.WithDescription("Return the list of expense categories as JSON."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func categoriesResource() mcp.Resource {
	return mcp.NewResource(CategoriesURI, "categories",
		mcp.WithResourceDescription("Advisory list of expense categories"),
		mcp.WithMIMEType(jsonMIMEType),
	)
}

func (h *handlers) addExpense(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	amount, err := req.RequireFloat("amount")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := h.expenses.AddExpense(ctx, core.NewExpense{
		Date:        date,
		Amount:      amount,
		Category:    category,
		Subcategory: req.GetString("subcategory", ""),
		Note:        req.GetString("note", ""),
	})
	return h.jsonResult(ctx, ToolAddExpense, result), nil
}

func (h *handlers) listExpenses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rng, err := requireRange(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	expenses, err := h.expenses.ListExpenses(ctx, rng)
	if err != nil {
		return h.jsonResult(ctx, ToolListExpenses, core.Failure(err)), nil
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	return h.jsonResult(ctx, ToolListExpenses, expenses), nil
}

func (h *handlers) summarizeExpenses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rng, err := requireRange(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summaries, err := h.expenses.SummarizeExpenses(ctx, rng, req.GetString("category", ""))
	if err != nil {
		return h.jsonResult(ctx, ToolSummarizeExpenses, core.Failure(err)), nil
	}
	if summaries == nil {
		summaries = []core.CategorySummary{}
	}
	return h.jsonResult(ctx, ToolSummarizeExpenses, summaries), nil
}

func (h *handlers) getCategories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(h.categoriesText(ctx)), nil
}

func (h *handlers) readCategories(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      CategoriesURI,
			MIMEType: jsonMIMEType,
			Text:     h.categoriesText(ctx),
		},
	}, nil
}

// categoriesText never fails; read errors become an error document.
func (h *handlers) categoriesText(ctx context.Context) string {
	text, err := h.categories.Read()
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to read categories", log.FieldError, err)
		return categories.ErrorDocument(err)
	}
	return text
}

func (h *handlers) jsonResult(ctx context.Context, tool string, v any) *mcp.CallToolResult {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to encode tool result", log.FieldTool, tool, log.FieldError, err)
		return mcp.NewToolResultError("encode result: " + err.Error())
	}
	return mcp.NewToolResultText(string(body))
}

func requireRange(req mcp.CallToolRequest) (core.DateRange, error) {
	start, err := req.RequireString("start_date")
	if err != nil {
		return core.DateRange{}, err
	}
	end, err := req.RequireString("end_date")
	if err != nil {
		return core.DateRange{}, err
	}
	return core.DateRange{Start: start, End: end}, nil
}
