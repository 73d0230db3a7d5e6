// Command qgen is a terminal client of the review gateway. With -prompt it
// runs one generation and exits; otherwise it reads commands from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/gateway/protocol"
)

const helpText = `Commands:
  /generate <prompt>     start a generation
  /stop                  stop the generation in flight
  /approve <question>    approve a question
  /reject <question>     reject a question
  /edit <question> <text> replace a question's text
  /approve-all           approve every pending question
  /sessions              list past sessions
  /select <session>      review a past session
  /delete <session>      delete a session
  /show                  print the questions on screen
  /quit                  exit`

func main() {
	addr := flag.String("addr", "ws://localhost:8090/ws", "Gateway websocket address")
	apiKey := flag.String("api-key", "", "API key for authentication")
	workspace := flag.String("workspace", "", "Workspace to join (a new one when empty)")
	prompt := flag.String("prompt", "", "Generate once for this prompt and exit")
	count := flag.Int("count", 5, "Number of questions to generate")
	types := flag.String("types", "", "Comma separated question types, cycled over the questions")
	difficulty := flag.String("difficulty", "", "Requested difficulty")
	approveAll := flag.Bool("approve-all", false, "Approve every question once the generation ends")
	flag.Parse()

	log.SetFlags(log.Ltime)

	client, err := Dial(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	view, err := client.Hello(*apiKey, *workspace)
	if err != nil {
		log.Fatalf("Hello failed: %v", err)
	}
	fmt.Printf("Workspace: %s (%s)\n", client.workspaceID, progressLine(view))

	if *prompt == "" {
		interactive(client, view, *count)
		return
	}

	req := &domain.GenerateRequest{
		Prompt:        *prompt,
		QuestionCount: *count,
		Difficulty:    domain.ParseDifficulty(*difficulty),
	}
	for _, t := range strings.Split(*types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			req.QuestionTypes = append(req.QuestionTypes, domain.ParseQuestionType(t))
		}
	}
	if err := generateOnce(client, req, *approveAll); err != nil {
		log.Fatalf("%v", err)
	}
}

// generateOnce runs one generation, printing progress until it ends.
func generateOnce(client *Client, req *domain.GenerateRequest, approveAll bool) error {
	reqID, err := client.Send(protocol.CommandMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeGenerate},
		Request:     req,
	})
	if err != nil {
		return fmt.Errorf("send generate: %w", err)
	}

	var (
		started bool
		last    string
		final   *protocol.View
	)
	for final == nil {
		msg, err := client.Read()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		switch msg.Type {
		case protocol.TypeError:
			if msg.RequestID == reqID {
				return fmt.Errorf("generate failed: %s - %s", msg.Code, msg.Message)
			}
		case protocol.TypeSnapshot:
			if line := progressLine(msg.View); line != last {
				fmt.Println(line)
				last = line
			}
			if msg.View.IsGenerating {
				started = true
			} else if started {
				final = msg.View
			}
		}
	}

	fmt.Println()
	renderQuestions(os.Stdout, activeQuestions(final))
	if final.LastError != "" {
		fmt.Printf("\nGeneration ended with an error: %s\n", final.LastError)
	}
	if !approveAll {
		return nil
	}

	reqID, err = client.Send(protocol.CommandMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypeApproveAll}})
	if err != nil {
		return fmt.Errorf("send approve_all: %w", err)
	}
	for {
		msg, err := client.Read()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msg.RequestID != reqID {
			continue
		}
		if msg.Type == protocol.TypeError {
			return fmt.Errorf("approve_all failed: %s - %s", msg.Code, msg.Message)
		}
		for _, r := range msg.Results {
			if r.OK {
				fmt.Printf("approved %s\n", r.QuestionID)
			} else {
				fmt.Printf("failed   %s: %s\n", r.QuestionID, r.Message)
			}
		}
		return nil
	}
}

func interactive(client *Client, view *protocol.View, count int) {
	fmt.Println(helpText)

	var (
		mu     sync.Mutex
		latest = view
	)
	go func() {
		for {
			msg, err := client.Read()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				os.Exit(0)
			}
			switch msg.Type {
			case protocol.TypeSnapshot:
				mu.Lock()
				latest = msg.View
				mu.Unlock()
				fmt.Println(progressLine(msg.View))
			case protocol.TypeSessions:
				if err := renderSessions(os.Stdout, msg.Sessions); err != nil {
					log.Printf("Bad sessions reply: %v", err)
				}
			case protocol.TypeResult:
				for _, r := range msg.Results {
					if !r.OK {
						fmt.Printf("failed %s: %s\n", r.QuestionID, r.Message)
					}
				}
				fmt.Printf("%s: ok=%v\n", msg.Command, msg.OK)
			case protocol.TypeError:
				fmt.Printf("%s failed: %s - %s\n", msg.Command, msg.Code, msg.Message)
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Println("\nInterrupted")
		client.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/quit":
			fmt.Println("Bye!")
			return
		case "/help":
			fmt.Println(helpText)
			continue
		case "/show":
			mu.Lock()
			v := latest
			mu.Unlock()
			renderQuestions(os.Stdout, activeQuestions(v))
			continue
		}

		cmd, err := parseCommand(input, count)
		if err != nil {
			fmt.Println(err)
			continue
		}
		if _, err := client.Send(cmd); err != nil {
			log.Printf("Send error: %v", err)
		}
	}
}
