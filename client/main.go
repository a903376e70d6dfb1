package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	v3orcapb "github.com/cncf/xds/go/xds/data/orca/v3"
	"github.com/mhbvr/collage/picker"
	pb "github.com/mhbvr/collage/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	addDir      = flag.String("add", "", "Stream the photos of a directory as one selection session")
	showState   = flag.Bool("state", false, "Show the editor state")
	clearPhotos = flag.Bool("clear", false, "Remove all photos")
	save        = flag.Bool("save", false, "Save the current collage")
	preview     = flag.Bool("preview", false, "Fetch the current preview (requires -output)")
	list        = flag.Bool("list", false, "List saved collages")
	load        = flag.String("load", "", "Fetch a saved collage by id (requires -output)")
	outputFile  = flag.String("output", "", "Output file for PNG data")
	serverAddr  = flag.String("addr", "localhost:8081", "Server address")
	showMetrics = flag.Bool("show-metrics", false, "Show ORCA metrics from trailers")
)

const ORCAMetadataKey = "endpoint-load-metrics-bin"

func main() {
	flag.Parse()

	client, conn := getClient()
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var trailer metadata.MD
	var err error
	switch {
	case *addDir != "":
		trailer, err = addPhotos(ctx, client, *addDir)
	case *showState:
		var resp *structpb.Struct
		resp, err = client.State(ctx, &emptypb.Empty{}, grpc.Trailer(&trailer))
		printStruct(resp)
	case *clearPhotos:
		var resp *structpb.Struct
		resp, err = client.Clear(ctx, &emptypb.Empty{}, grpc.Trailer(&trailer))
		printStruct(resp)
	case *save:
		var resp *wrapperspb.StringValue
		resp, err = client.Save(ctx, &emptypb.Empty{}, grpc.Trailer(&trailer))
		if err == nil {
			fmt.Printf("Saved with id: %s\n", resp.GetValue())
		}
	case *list:
		var resp *structpb.ListValue
		resp, err = client.ListSaved(ctx, &emptypb.Empty{}, grpc.Trailer(&trailer))
		for _, item := range resp.GetValues() {
			f := item.GetStructValue().GetFields()
			fmt.Printf("%s\t%.0f bytes\t%s\n", f["id"].GetStringValue(), f["size"].GetNumberValue(), f["saved_at"].GetStringValue())
		}
	case *preview:
		var resp *wrapperspb.BytesValue
		resp, err = client.Preview(ctx, &emptypb.Empty{}, grpc.Trailer(&trailer))
		if err == nil {
			writeOutput(resp.GetValue())
		}
	case *load != "":
		var resp *wrapperspb.BytesValue
		resp, err = client.LoadSaved(ctx, wrapperspb.String(*load), grpc.Trailer(&trailer))
		if err == nil {
			writeOutput(resp.GetValue())
		}
	default:
		flag.Usage()
		return
	}
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}

	if *showMetrics {
		printORCAMetrics(trailer)
	}
}

func getClient() (*pb.CollageEditorClient, *grpc.ClientConn) {
	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	return pb.NewCollageEditorClient(conn), conn
}

func addPhotos(ctx context.Context, client *pb.CollageEditorClient, dir string) (metadata.MD, error) {
	files, err := picker.Files(dir)
	if err != nil {
		return nil, err
	}

	stream, err := client.AddPhotos(ctx)
	if err != nil {
		return nil, err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read photo file %s: %w", path, err)
		}
		if err := stream.Send(wrapperspb.Bytes(data)); err != nil {
			// The server ended the session, CloseAndRecv reports why
			break
		}
		fmt.Printf("Sent %s (%d bytes)\n", path, len(data))
	}

	resp, err := stream.CloseAndRecv()
	if err != nil {
		return nil, err
	}
	printStruct(resp)
	return stream.Trailer(), nil
}

func printStruct(s *structpb.Struct) {
	if s == nil {
		return
	}
	out, err := json.MarshalIndent(s.AsMap(), "", "  ")
	if err != nil {
		log.Printf("failed to format response: %v", err)
		return
	}
	fmt.Println(string(out))
}

func writeOutput(data []byte) {
	if *outputFile == "" {
		fmt.Printf("PNG data: %d bytes (use -output to write it to a file)\n", len(data))
		return
	}
	if err := os.WriteFile(*outputFile, data, 0644); err != nil {
		log.Fatalf("Failed to write file: %v", err)
	}
	fmt.Printf("Collage saved to %s (%d bytes)\n", *outputFile, len(data))
}

func printORCAMetrics(trailer metadata.MD) {
	vals := trailer.Get(ORCAMetadataKey)
	if len(vals) == 0 {
		log.Println("No ORCA metrics")
	}

	for _, v := range vals {
		var report v3orcapb.OrcaLoadReport
		if err := proto.Unmarshal([]byte(v), &report); err != nil {
			log.Printf("failed to unmarshal load report found in metadata: %v", err)
		}
		fmt.Printf("ORCA report: %v\n", report.String())
	}
}
